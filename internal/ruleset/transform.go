package ruleset

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"sjsage522/bidnoticeworker/helpers"
)

// Transform is a parsed field callback. Callbacks are small expressions over
// the extracted value `rst`, for example:
//
//	"https://www.example.go.kr/board/view.do?idx=" + rst
//	rst.split("'")[1]
//	rst.match("goView\\((\\d+)\\)")[1].prefix("/view?no=")
//
// Only string literals, `rst`, `+` and the methods trim, replace, split,
// match, prefix, suffix, lower and upper are understood.
type Transform struct {
	src  string
	root node
}

// ParseTransform parses a callback expression
func ParseTransform(src string) (*Transform, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty transform")
	}

	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", p.peek().text, p.peek().pos)
	}
	return &Transform{src: src, root: root}, nil
}

// Apply evaluates the transform with rst bound to value
func (t *Transform) Apply(value string) (string, error) {
	if t == nil || t.root == nil {
		return value, nil
	}
	return t.root.eval(value)
}

func (t *Transform) String() string {
	if t == nil {
		return ""
	}
	return t.src
}

type node interface {
	eval(rst string) (string, error)
}

type literalNode struct{ value string }

func (n literalNode) eval(string) (string, error) { return n.value, nil }

type inputNode struct{}

func (inputNode) eval(rst string) (string, error) { return rst, nil }

type concatNode struct{ parts []node }

func (n concatNode) eval(rst string) (string, error) {
	var b strings.Builder
	for _, p := range n.parts {
		s, err := p.eval(rst)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

type callNode struct {
	recv   node
	method string
	args   []string
	re     *regexp.Regexp
	index  int
	hasIdx bool
}

func (n callNode) eval(rst string) (string, error) {
	v, err := n.recv.eval(rst)
	if err != nil {
		return "", err
	}

	switch n.method {
	case "trim":
		return strings.TrimSpace(v), nil
	case "lower":
		return strings.ToLower(v), nil
	case "upper":
		return strings.ToUpper(v), nil
	case "prefix":
		return n.args[0] + v, nil
	case "suffix":
		return v + n.args[0], nil
	case "replace":
		return strings.ReplaceAll(v, n.args[0], n.args[1]), nil
	case "split":
		part, err := helpers.GetSplitPart(v, n.args[0], n.index)
		if err != nil {
			return "", fmt.Errorf("split %q: %w", n.args[0], err)
		}
		return part, nil
	case "match":
		m := n.re.FindStringSubmatch(v)
		if m == nil {
			return "", fmt.Errorf("match %q: no match in %q", n.args[0], v)
		}
		return pick(m, n.index, "match")
	}
	return "", fmt.Errorf("unknown method %s", n.method)
}

func pick(parts []string, i int, what string) (string, error) {
	if i < 0 {
		i += len(parts)
	}
	if i < 0 || i >= len(parts) {
		return "", fmt.Errorf("%s: index %d out of range (%d parts)", what, i, len(parts))
	}
	return parts[i], nil
}

// method name -> number of string arguments
var methods = map[string]int{
	"trim":    0,
	"lower":   0,
	"upper":   0,
	"prefix":  1,
	"suffix":  1,
	"replace": 2,
	"split":   1,
	"match":   1,
}

// lexer

type tokKind int

const (
	tokEOF tokKind = iota
	tokString
	tokIdent
	tokInt
	tokPunct
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func lex(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '"' || r == '\'' || r == '`':
			s, n, err := lexString(rs[i:])
			if err != nil {
				return nil, fmt.Errorf("offset %d: %w", i, err)
			}
			toks = append(toks, token{tokString, s, i})
			i += n
		case r == '-' || unicode.IsDigit(r):
			j := i + 1
			for j < len(rs) && unicode.IsDigit(rs[j]) {
				j++
			}
			if r == '-' && j == i+1 {
				return nil, fmt.Errorf("offset %d: unexpected '-'", i)
			}
			toks = append(toks, token{tokInt, string(rs[i:j]), i})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i + 1
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_') {
				j++
			}
			toks = append(toks, token{tokIdent, string(rs[i:j]), i})
			i = j
		case strings.ContainsRune("+.()[],", r):
			toks = append(toks, token{tokPunct, string(r), i})
			i++
		default:
			return nil, fmt.Errorf("offset %d: unexpected character %q", i, r)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(rs)}), nil
}

func lexString(rs []rune) (string, int, error) {
	quote := rs[0]
	var b strings.Builder
	for i := 1; i < len(rs); i++ {
		r := rs[i]
		if r == quote {
			return b.String(), i + 1, nil
		}
		if r == '\\' && quote != '`' && i+1 < len(rs) {
			i++
			switch rs[i] {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				// keep regex escapes such as \d intact
				if rs[i] != quote && rs[i] != '\\' {
					b.WriteRune('\\')
				}
				b.WriteRune(rs[i])
			}
			continue
		}
		b.WriteRune(r)
	}
	return "", 0, fmt.Errorf("unterminated string")
}

// parser

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) punct(s string) bool {
	if t := p.peek(); t.kind == tokPunct && t.text == s {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(s string) error {
	if !p.punct(s) {
		t := p.peek()
		return fmt.Errorf("expected %q at offset %d, got %q", s, t.pos, t.text)
	}
	return nil
}

func (p *parser) expr() (node, error) {
	first, err := p.term()
	if err != nil {
		return nil, err
	}
	parts := []node{first}
	for p.punct("+") {
		n, err := p.term()
		if err != nil {
			return nil, err
		}
		parts = append(parts, n)
	}
	if len(parts) == 1 {
		return first, nil
	}
	return concatNode{parts: parts}, nil
}

func (p *parser) term() (node, error) {
	n, err := p.primary()
	if err != nil {
		return nil, err
	}
	for p.punct(".") {
		n, err = p.call(n)
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (p *parser) primary() (node, error) {
	t := p.next()
	switch {
	case t.kind == tokString:
		return literalNode{value: t.text}, nil
	case t.kind == tokIdent && t.text == "rst":
		return inputNode{}, nil
	case t.kind == tokPunct && t.text == "(":
		n, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return n, nil
	case t.kind == tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
}

func (p *parser) call(recv node) (node, error) {
	name := p.next()
	if name.kind != tokIdent {
		return nil, fmt.Errorf("expected method name at offset %d", name.pos)
	}
	arity, ok := methods[name.text]
	if !ok {
		return nil, fmt.Errorf("unknown method %q", name.text)
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}

	var args []string
	for p.peek().kind == tokString {
		args = append(args, p.next().text)
		if !p.punct(",") {
			break
		}
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	if len(args) != arity {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", name.text, arity, len(args))
	}

	c := callNode{recv: recv, method: name.text, args: args}
	if name.text == "match" {
		re, err := regexp.Compile(args[0])
		if err != nil {
			return nil, fmt.Errorf("match: %w", err)
		}
		c.re = re
	}

	if p.punct("[") {
		t := p.next()
		if t.kind != tokInt {
			return nil, fmt.Errorf("expected index at offset %d", t.pos)
		}
		idx, err := strconv.Atoi(t.text)
		if err != nil {
			return nil, err
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		c.index, c.hasIdx = idx, true
	}

	switch name.text {
	case "split", "match":
		if !c.hasIdx {
			return nil, fmt.Errorf("%s requires an index", name.text)
		}
	default:
		if c.hasIdx {
			return nil, fmt.Errorf("%s does not take an index", name.text)
		}
	}
	return c, nil
}
