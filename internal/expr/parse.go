package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type (
	tokenKind int

	token struct {
		kind tokenKind
		text string
	}

	parser struct {
		toks []token
		pos  int
	}
)

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
	tokComma
)

var keywordLiterals = map[string]any{
	"true":  true,
	"false": false,
	"null":  nil,
}

func lex(source string) ([]token, error) {
	var toks []token
	runes := []rune(source)
	i := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c == '\'' || c == '"':
			quote := c
			i++
			var sb strings.Builder
			for i < len(runes) && runes[i] != quote {
				if runes[i] == '\\' && i+1 < len(runes) {
					i++
				}
				sb.WriteRune(runes[i])
				i++
			}
			if i >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated string", ErrParse)
			}
			i++
			toks = append(toks, token{tokString, sb.String()})
		case unicode.IsDigit(c):
			start := i
			for i < len(runes) &&
				(unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, string(runes[start:i])})
		case isIdentStart(c):
			start := i
			for i < len(runes) && isIdentPart(runes[i]) {
				i++
			}
			toks = append(toks, token{tokIdent, string(runes[start:i])})
		default:
			if op, n := matchOperator(runes[i:]); n > 0 {
				toks = append(toks, token{tokOp, op})
				i += n
				continue
			}
			return nil, fmt.Errorf("%w: unexpected character %q",
				ErrParse, string(c))
		}
	}
	return toks, nil
}

func matchOperator(runes []rune) (string, int) {
	two := [...]string{"&&", "||", "==", "!=", "<=", ">="}
	if len(runes) >= 2 {
		pair := string(runes[:2])
		for _, op := range two {
			if pair == op {
				return op, 2
			}
		}
	}
	switch runes[0] {
	case '!', '<', '>', '-':
		return string(runes[0]), 1
	}
	return "", 0
}

func isIdentStart(c rune) bool {
	return unicode.IsLetter(c) || c == '_'
}

func isIdentPart(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) ||
		c == '_' || c == '.'
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.matchOp("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "||", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.matchOp("&&") {
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "&&", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for _, op := range [...]string{"==", "!=", "<=", ">=", "<", ">"} {
		if p.matchOp(op) {
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &binaryNode{op: op, left: left, right: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.matchOp("!") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "!", operand: operand}, nil
	}
	if p.matchOp("-") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "-", operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.atEnd() {
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrParse)
	}
	tok := p.peek()
	switch tok.kind {
	case tokLParen:
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.matchKind(tokRParen) {
			return nil, fmt.Errorf("%w: expected )", ErrParse)
		}
		return inner, nil
	case tokNumber:
		p.pos++
		f, err := parseNumber(tok.text)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", ErrParse, tok.text)
		}
		return &literalNode{value: f}, nil
	case tokString:
		p.pos++
		return &literalNode{value: tok.text}, nil
	case tokIdent:
		p.pos++
		if v, ok := keywordLiterals[tok.text]; ok {
			return &literalNode{value: v}, nil
		}
		if !p.atEnd() && p.peek().kind == tokLParen {
			return p.parseCall(tok.text)
		}
		return &pathNode{path: tok.text}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %q", ErrParse, tok.text)
	}
}

func (p *parser) parseCall(name string) (node, error) {
	p.pos++ // consume (
	var args []node
	if !p.matchKind(tokRParen) {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.matchKind(tokComma) {
				continue
			}
			if p.matchKind(tokRParen) {
				break
			}
			return nil, fmt.Errorf("%w: expected , or ) in %s()",
				ErrParse, name)
		}
	}
	return &callNode{name: name, args: args}, nil
}

func (p *parser) matchOp(op string) bool {
	if !p.atEnd() && p.toks[p.pos].kind == tokOp &&
		p.toks[p.pos].text == op {
		p.pos++
		return true
	}
	return false
}

func (p *parser) matchKind(k tokenKind) bool {
	if !p.atEnd() && p.toks[p.pos].kind == k {
		p.pos++
		return true
	}
	return false
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) atEnd() bool {
	return p.pos >= len(p.toks)
}
