package script

import "github.com/toolsascode/schemaflow/internal/backends"

// Dialect selects the string literal rules used when splitting scripts.
type Dialect int

const (
	// Standard follows the SQL standard: a backslash is an ordinary
	// character. SQLite uses these rules.
	Standard Dialect = iota
	// PostgreSQL reads plain '...' literals like Standard; only E'...'
	// literals treat a backslash as an escape.
	PostgreSQL
	// MySQL treats a backslash as an escape in '...' and "..." strings.
	MySQL
)

// DialectFor maps a backend name, or any alias of one, to its dialect.
// Unknown names get Standard.
func DialectFor(backend string) Dialect {
	name, err := backends.Normalize(backend)
	if err != nil {
		return Standard
	}
	switch name {
	case "postgresql":
		return PostgreSQL
	case "mysql":
		return MySQL
	}
	return Standard
}

func (d Dialect) String() string {
	switch d {
	case PostgreSQL:
		return "postgresql"
	case MySQL:
		return "mysql"
	}
	return "standard"
}
