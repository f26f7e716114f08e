package session

import (
	"fmt"
	"strings"
)

// MigrationError is the session-fatal error. It names the definition and
// module being processed and carries the log accumulated for that
// definition.
type MigrationError struct {
	Definition string
	Module     string
	Log        []string
	Err        error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration of definition %q in module %q failed", e.Definition, e.Module)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	for _, entry := range e.Log {
		for _, line := range strings.Split(entry, "\n") {
			b.WriteString("\n    ")
			b.WriteString(line)
		}
	}
	return b.String()
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// ChecksumError reports a script that could not be read to compute its
// checksum. A script that cannot be checksummed cannot be tracked.
type ChecksumError struct {
	Path string
	Err  error
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("failed to compute checksum of %s: %v", e.Path, e.Err)
}

func (e *ChecksumError) Unwrap() error {
	return e.Err
}
