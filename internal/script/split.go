package script

import "strings"

// Split breaks a SQL script into statements on semicolons. Semicolons inside
// quoted strings, quoted identifiers, comments and PostgreSQL dollar-quoted
// bodies do not terminate a statement. Comments are kept with the statement
// that follows them; statements that hold nothing but whitespace and
// comments are dropped. dialect decides where a backslash escapes a quote.
func Split(sql string, dialect Dialect) []string {
	var (
		statements []string
		current    strings.Builder
		hasCode    bool
	)

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" && hasCode {
			statements = append(statements, stmt)
		}
		current.Reset()
		hasCode = false
	}

	for i := 0; i < len(sql); {
		c := sql[i]

		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				end = len(sql) - i
			}
			current.WriteString(sql[i : i+end])
			i += end

		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				current.WriteString(sql[i:])
				i = len(sql)
				continue
			}
			current.WriteString(sql[i : i+2+end+2])
			i += 2 + end + 2

		case c == '\'' || c == '"' || c == '`':
			end := closingQuote(sql, i+1, c, backslashEscapes(sql, i, dialect))
			current.WriteString(sql[i:end])
			hasCode = true
			i = end

		case c == '$':
			tag, ok := dollarTag(sql, i)
			if !ok {
				current.WriteByte(c)
				hasCode = true
				i++
				continue
			}
			end := strings.Index(sql[i+len(tag):], tag)
			if end < 0 {
				current.WriteString(sql[i:])
				hasCode = true
				i = len(sql)
				continue
			}
			stop := i + len(tag) + end + len(tag)
			current.WriteString(sql[i:stop])
			hasCode = true
			i = stop

		case c == ';':
			flush()
			i++

		default:
			if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
				hasCode = true
			}
			current.WriteByte(c)
			i++
		}
	}

	flush()
	return statements
}

// backslashEscapes reports whether a backslash escapes the next character
// inside the quoted text opening at i.
func backslashEscapes(sql string, i int, dialect Dialect) bool {
	switch dialect {
	case MySQL:
		return sql[i] == '\'' || sql[i] == '"'
	case PostgreSQL:
		// E'...' escape string constant
		if sql[i] != '\'' || i == 0 || (sql[i-1] != 'E' && sql[i-1] != 'e') {
			return false
		}
		return i == 1 || !isIdentByte(sql[i-2])
	}
	return false
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// closingQuote returns the index just past the quote that closes a string
// started at start-1. Doubled quotes are escapes; so is a backslash when
// escapes is set.
func closingQuote(sql string, start int, quote byte, escapes bool) int {
	for i := start; i < len(sql); i++ {
		switch sql[i] {
		case '\\':
			if escapes {
				i++
			}
		case quote:
			if i+1 < len(sql) && sql[i+1] == quote {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(sql)
}

// dollarTag reports the $tag$ opening a dollar-quoted body at i, if any.
func dollarTag(sql string, i int) (string, bool) {
	for j := i + 1; j < len(sql); j++ {
		c := sql[j]
		switch {
		case c == '$':
			return sql[i : j+1], true
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
			if j == i+1 {
				// $1 is a positional parameter.
				return "", false
			}
		default:
			return "", false
		}
	}
	return "", false
}
