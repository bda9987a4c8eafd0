package expression

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrSyntax is returned for input outside the comparison grammar.
	ErrSyntax = errors.New("expression syntax error")
	// ErrUnresolved is returned when a variable path does not exist in the data.
	ErrUnresolved = errors.New("unresolved variable")
)

type parser struct {
	tokens []token
	pos    int
}

// Parse turns an expression into its AST. Accepted forms are a single comparison
// "<operand> <op> <operand>" or a bare "{{path}}" checked for truthiness.
func Parse(input string) (Node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}

	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}

	return p.parseExpression()
}

func (p *parser) parseExpression() (Node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if p.peek().kind == tokenEOF {
		if _, ok := left.(VariableRef); !ok {
			return nil, fmt.Errorf("%w: bare operand must be a variable reference", ErrSyntax)
		}

		return left, nil
	}

	opToken := p.next()
	if opToken.kind != tokenOperator {
		return nil, fmt.Errorf("%w: expected operator at %d, got %s", ErrSyntax, opToken.pos, opToken.kind)
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if tail := p.peek(); tail.kind != tokenEOF {
		return nil, fmt.Errorf("%w: unexpected %s at %d", ErrSyntax, tail.kind, tail.pos)
	}

	return Comparison{Left: left, Op: Operator(opToken.text), Right: right}, nil
}

func (p *parser) parseOperand() (Node, error) {
	tok := p.next()

	switch tok.kind {
	case tokenVariable:
		return VariableRef{Path: strings.Split(tok.text, ".")}, nil
	case tokenNumber:
		n, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid number %q", ErrSyntax, tok.text)
		}

		return Literal{Value: n}, nil
	case tokenString:
		return Literal{Value: tok.text}, nil
	case tokenBool:
		return Literal{Value: tok.text == "true"}, nil
	default:
		return nil, fmt.Errorf("%w: expected operand at %d, got %s", ErrSyntax, tok.pos, tok.kind)
	}
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}

	return tok
}
