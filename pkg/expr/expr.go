// Package expr expands shell-like variable references in search filter
// templates.
//
//	$name            value of name
//	${name}          same, delimited
//	${name:-word}    value of name, or word when the value is empty
//	${name:+word}    word when the value is non-empty, else nothing
//	\c               the literal character c
//
// Words may themselves contain references. Names consist of letters, digits
// and underscores. A name the resolver does not know expands to "".
package expr

import (
	"errors"
	"fmt"
	"strings"
)

var ErrSyntax = errors.New("expr: syntax error")

// Resolver looks up the value of a variable
type Resolver interface {
	Resolve(name string) (string, bool)
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(name string) (string, bool)

func (f ResolverFunc) Resolve(name string) (string, bool) {
	return f(name)
}

// Expand substitutes every reference in template using r
func Expand(template string, r Resolver) (string, error) {
	p := parser{s: template, r: r}
	out, err := p.expand(false)
	if err != nil {
		return "", err
	}
	return out, nil
}

// Parse checks template for syntax errors without resolving anything
func Parse(template string) error {
	_, err := Variables(template)
	return err
}

// Variables returns the distinct names referenced by template, in order of
// first appearance
func Variables(template string) ([]string, error) {
	var names []string
	seen := map[string]bool{}
	_, err := Expand(template, ResolverFunc(func(name string) (string, bool) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return "", false
	}))
	if err != nil {
		return nil, err
	}
	return names, nil
}

type parser struct {
	s   string
	pos int
	r   Resolver
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, p.pos, fmt.Sprintf(format, args...))
}

// expand consumes input until its end, or until an unmatched '}' when
// inWord is set, and returns the expanded text
func (p *parser) expand(inWord bool) (string, error) {
	var b strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		switch {
		case c == '\\':
			if p.pos+1 >= len(p.s) {
				return "", p.errorf("trailing backslash")
			}
			b.WriteByte(p.s[p.pos+1])
			p.pos += 2
		case c == '$':
			v, err := p.variable()
			if err != nil {
				return "", err
			}
			b.WriteString(v)
		case c == '}' && inWord:
			return b.String(), nil
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	if inWord {
		return "", p.errorf("missing '}'")
	}
	return b.String(), nil
}

// variable handles one reference starting at '$'
func (p *parser) variable() (string, error) {
	p.pos++ // $
	if p.pos >= len(p.s) || p.s[p.pos] != '{' {
		name := p.name()
		if name == "" {
			return "", p.errorf("'$' without variable name")
		}
		return p.lookup(name), nil
	}

	p.pos++ // {
	name := p.name()
	if name == "" {
		return "", p.errorf("missing variable name after '${'")
	}
	if p.pos >= len(p.s) {
		return "", p.errorf("missing '}'")
	}
	value := p.lookup(name)
	switch p.s[p.pos] {
	case '}':
		p.pos++
		return value, nil
	case ':':
		if p.pos+1 >= len(p.s) {
			return "", p.errorf("missing modifier after ':'")
		}
		op := p.s[p.pos+1]
		if op != '-' && op != '+' {
			return "", p.errorf("unknown modifier ':%c'", op)
		}
		p.pos += 2
		word, err := p.expand(true)
		if err != nil {
			return "", err
		}
		p.pos++ // }
		if op == '-' {
			if value == "" {
				return word, nil
			}
			return value, nil
		}
		if value != "" {
			return word, nil
		}
		return "", nil
	default:
		return "", p.errorf("unexpected %q in variable reference", p.s[p.pos])
	}
}

func (p *parser) name() string {
	start := p.pos
	for p.pos < len(p.s) && isNameChar(p.s[p.pos]) {
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *parser) lookup(name string) string {
	if p.r == nil {
		return ""
	}
	v, _ := p.r.Resolve(name)
	return v
}

func isNameChar(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
