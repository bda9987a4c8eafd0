package expression

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenVariable
	tokenNumber
	tokenString
	tokenBool
	tokenOperator
)

func (k tokenKind) String() string {
	switch k {
	case tokenEOF:
		return "end of expression"
	case tokenVariable:
		return "variable"
	case tokenNumber:
		return "number"
	case tokenString:
		return "string"
	case tokenBool:
		return "boolean"
	case tokenOperator:
		return "operator"
	default:
		return "unknown"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// operators ordered longest first so ">=" is never read as ">".
var operators = []Operator{OpStrictEq, OpStrictNeq, OpEq, OpNeq, OpGte, OpLte, OpGt, OpLt}

func tokenize(input string) ([]token, error) {
	var tokens []token

	i := 0
	for i < len(input) {
		c := input[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case strings.HasPrefix(input[i:], "{{"):
			end := strings.Index(input[i+2:], "}}")
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated variable at %d", ErrSyntax, i)
			}

			path := strings.TrimSpace(input[i+2 : i+2+end])
			if !validPath(path) {
				return nil, fmt.Errorf("%w: invalid variable path %q", ErrSyntax, path)
			}

			tokens = append(tokens, token{kind: tokenVariable, text: path, pos: i})
			i += end + 4
		case c == '"' || c == '\'':
			end := strings.IndexByte(input[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated string at %d", ErrSyntax, i)
			}

			tokens = append(tokens, token{kind: tokenString, text: input[i+1 : i+1+end], pos: i})
			i += end + 2
		case isDigit(c) || ((c == '-' || c == '.') && i+1 < len(input) && (isDigit(input[i+1]) || input[i+1] == '.')):
			start := i
			i++

			for i < len(input) && (isDigit(input[i]) || input[i] == '.' || input[i] == 'e' || input[i] == 'E' ||
				((input[i] == '-' || input[i] == '+') && (input[i-1] == 'e' || input[i-1] == 'E'))) {
				i++
			}

			tokens = append(tokens, token{kind: tokenNumber, text: input[start:i], pos: start})
		case isOperatorStart(c):
			op, ok := matchOperator(input[i:])
			if !ok {
				return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, c, i)
			}

			tokens = append(tokens, token{kind: tokenOperator, text: string(op), pos: i})
			i += len(op)
		case unicode.IsLetter(rune(c)):
			start := i
			for i < len(input) && (unicode.IsLetter(rune(input[i])) || isDigit(input[i]) || input[i] == '_') {
				i++
			}

			word := input[start:i]
			if word != "true" && word != "false" {
				return nil, fmt.Errorf("%w: unexpected identifier %q", ErrSyntax, word)
			}

			tokens = append(tokens, token{kind: tokenBool, text: word, pos: start})
		default:
			return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, c, i)
		}
	}

	return append(tokens, token{kind: tokenEOF, pos: len(input)}), nil
}

func matchOperator(s string) (Operator, bool) {
	for _, op := range operators {
		if strings.HasPrefix(s, string(op)) {
			return op, true
		}
	}

	return "", false
}

func isOperatorStart(c byte) bool {
	return c == '=' || c == '!' || c == '<' || c == '>'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// validPath accepts dot-separated segments of letters, digits, '_' and '-'.
func validPath(path string) bool {
	if path == "" {
		return false
	}

	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			return false
		}

		for _, r := range segment {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
				return false
			}
		}
	}

	return true
}
