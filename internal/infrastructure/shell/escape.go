package shell

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/alessio/shellescape"
)

var (
	ErrNULByte     = errors.New("value contains a NUL byte")
	ErrInvalidUTF8 = errors.New("value is not valid UTF-8")
)

// Escaper renders values as single POSIX shell words.
type Escaper struct{}

func NewEscaper() Escaper {
	return Escaper{}
}

// Quote returns a token the shell reads back as exactly value.
// Values a shell word cannot carry are rejected.
func (Escaper) Quote(value string) (string, error) {
	if strings.IndexByte(value, 0) >= 0 {
		return "", ErrNULByte
	}
	if !utf8.ValidString(value) {
		return "", ErrInvalidUTF8
	}
	if value == "" {
		return "''", nil
	}
	quoted := shellescape.Quote(value)
	if !isSingleWord(quoted) {
		return "", fmt.Errorf("escape %q: ambiguous shell rendering", value)
	}
	return quoted, nil
}

// Join quotes every value and joins them with spaces.
func (e Escaper) Join(values ...string) (string, error) {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		q, err := e.Quote(v)
		if err != nil {
			return "", err
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, " "), nil
}

// isSingleWord checks that every unquoted stretch of s is free of shell
// metacharacters. Inside single quotes nothing is special.
func isSingleWord(s string) bool {
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		// shellescape writes an embedded quote as "'"
		if c == '"' && i+2 < len(s) && s[i+1] == '\'' && s[i+2] == '"' {
			i += 2
			continue
		}
		if strings.IndexByte(" \t\n;|&$`\"<>()*?[]{}~#!\\", c) >= 0 {
			return false
		}
	}
	return !inQuote
}
