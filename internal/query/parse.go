package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/workgraph/internal/ir"
)

// ParseError reports where a selector stopped making sense.
type ParseError struct {
	Selector string
	Pos      int
	Msg      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("selector %q at %d: %s", e.Selector, e.Pos, e.Msg)
}

// Parse reads a selector into a Query.
//
// Grammar, a safe subset of CSS selectors:
//
//	selector = [ type | "*" ] { term }
//	term     = "[" attr [ "=" value ] "]"
//	         | ":not(" "[" attr "]" ")"
//	         | ":is(" "[" attr "=" value "]" { "," "[" attr "=" value "]" } ")"
//	value    = quoted-string | integer | "true" | "false" | ident
//
// A "data-" prefix on attribute names is dropped. Quoted values are
// strings, bare integers are ints, true and false are bools and any other
// bare word is a string. Every term inside one :is() must name the same
// attribute.
func Parse(selector string) (Query, error) {
	p := &parser{src: selector}
	return p.parse()
}

// MustParse is like Parse but panics on error.
// Use only in tests or with constant selectors.
func MustParse(selector string) Query {
	q, err := Parse(selector)
	if err != nil {
		panic(err)
	}
	return q
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Selector: p.src, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parse() (Query, error) {
	var q Query
	p.skipSpace()
	switch {
	case p.peek() == '*':
		p.pos++
	case isIdentByte(p.peek()):
		q.Type = p.ident()
	}

	for {
		p.skipSpace()
		if p.eof() {
			return q, nil
		}
		switch {
		case p.peek() == '[':
			attr, val, hasVal, err := p.bracket()
			if err != nil {
				return Query{}, err
			}
			if hasVal {
				q.Terms = append(q.Terms, Equals{Attr: attr, Value: val})
			} else {
				q.Terms = append(q.Terms, Exists{Attr: attr})
			}
		case p.consume(":not("):
			p.skipSpace()
			attr, _, hasVal, err := p.bracket()
			if err != nil {
				return Query{}, err
			}
			if hasVal {
				return Query{}, p.errorf(":not() takes an attribute without a value")
			}
			if err := p.expect(')'); err != nil {
				return Query{}, err
			}
			q.Terms = append(q.Terms, NotExists{Attr: attr})
		case p.consume(":is("):
			term, err := p.isTerm()
			if err != nil {
				return Query{}, err
			}
			q.Terms = append(q.Terms, term)
		default:
			return Query{}, p.errorf("unexpected %q", p.peek())
		}
	}
}

// isTerm parses the body of :is( ... ) after the opening parenthesis.
func (p *parser) isTerm() (Predicate, error) {
	set := InSet{}
	for {
		p.skipSpace()
		attr, val, hasVal, err := p.bracket()
		if err != nil {
			return nil, err
		}
		if !hasVal {
			return nil, p.errorf(":is() terms need a value")
		}
		if set.Attr != "" && set.Attr != attr {
			return nil, p.errorf(":is() mixes attributes %q and %q", set.Attr, attr)
		}
		set.Attr = attr
		set.Values = append(set.Values, val)

		p.skipSpace()
		switch {
		case p.consume(","):
		case p.consume(")"):
			return set, nil
		default:
			return nil, p.errorf("expected ',' or ')' in :is()")
		}
	}
}

// bracket parses "[attr]" or "[attr=value]".
func (p *parser) bracket() (attr string, val ir.Value, hasVal bool, err error) {
	if err := p.expect('['); err != nil {
		return "", nil, false, err
	}
	p.skipSpace()
	if !isIdentByte(p.peek()) {
		return "", nil, false, p.errorf("expected attribute name")
	}
	attr = strings.TrimPrefix(p.ident(), "data-")
	if attr == "" {
		return "", nil, false, p.errorf("empty attribute name")
	}
	p.skipSpace()
	if p.consume("=") {
		p.skipSpace()
		if val, err = p.value(); err != nil {
			return "", nil, false, err
		}
		hasVal = true
		p.skipSpace()
	}
	if err := p.expect(']'); err != nil {
		return "", nil, false, err
	}
	return attr, val, hasVal, nil
}

func (p *parser) value() (ir.Value, error) {
	switch c := p.peek(); {
	case c == '"' || c == '\'':
		s, err := p.quoted(c)
		if err != nil {
			return nil, err
		}
		return ir.String(s), nil
	case isIdentByte(c) || c == '+':
		start := p.pos
		if c == '+' {
			p.pos++
		}
		word := p.ident()
		if c == '+' {
			word = p.src[start:p.pos]
		}
		if n, err := strconv.ParseInt(word, 10, 64); err == nil {
			return ir.Int(n), nil
		}
		switch word {
		case "true":
			return ir.Bool(true), nil
		case "false":
			return ir.Bool(false), nil
		}
		if c == '+' {
			return nil, p.errorf("bad number %q", word)
		}
		return ir.String(word), nil
	default:
		return nil, p.errorf("expected value")
	}
}

func (p *parser) quoted(q byte) (string, error) {
	p.pos++
	var b strings.Builder
	for !p.eof() {
		c := p.src[p.pos]
		switch c {
		case '\\':
			if p.pos+1 >= len(p.src) {
				return "", p.errorf("dangling escape")
			}
			b.WriteByte(p.src[p.pos+1])
			p.pos += 2
		case q:
			p.pos++
			return b.String(), nil
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *parser) ident() string {
	start := p.pos
	for !p.eof() && isIdentByte(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) consume(s string) bool {
	if strings.HasPrefix(p.src[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func isIdentByte(c byte) bool {
	return c == '-' || c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
