// Package expr implements the boolean assertion language evaluated against
// step responses. The grammar is deliberately small: comparisons, boolean
// operators, literals, dot-path field access, and the len/contains
// builtins. Expressions see only the response document and the run's
// captured variables; there is no access to the host environment
package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

type (
	// Expr is a compiled assertion expression
	Expr struct {
		source string
		root   node
	}

	// Env is the data an expression may reference: the response document
	// and the variables captured earlier in the run
	Env struct {
		Document []byte
		Vars     map[string]any
	}

	node interface {
		eval(env *Env) (any, error)
	}

	binaryNode struct {
		left, right node
		op          string
	}

	unaryNode struct {
		operand node
		op      string
	}

	literalNode struct {
		value any
	}

	pathNode struct {
		path string
	}

	callNode struct {
		name string
		args []node
	}
)

var (
	ErrEmptyExpression  = errors.New("empty expression")
	ErrParse            = errors.New("expression parse error")
	ErrUnknownFunction  = errors.New("unknown function")
	ErrBadArgumentCount = errors.New("wrong argument count")
	ErrNotComparable    = errors.New("values not comparable")
)

// Parse compiles an expression, reporting syntax errors up front so that
// malformed assertions fail at definition time rather than mid-run
func Parse(source string) (*Expr, error) {
	toks, err := lex(source)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, ErrEmptyExpression
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("%w: unexpected %q", ErrParse, p.peek().text)
	}
	return &Expr{source: source, root: root}, nil
}

// Eval evaluates the expression and reports its truthiness. The empty
// string, zero, null, and false are falsy; everything else is truthy
func (e *Expr) Eval(env *Env) (bool, error) {
	v, err := e.root.eval(env)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// Source returns the original expression text
func (e *Expr) Source() string {
	return e.source
}

func (n *binaryNode) eval(env *Env) (any, error) {
	switch n.op {
	case "&&":
		l, err := n.left.eval(env)
		if err != nil {
			return nil, err
		}
		if !truthy(l) {
			return false, nil
		}
		r, err := n.right.eval(env)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	case "||":
		l, err := n.left.eval(env)
		if err != nil {
			return nil, err
		}
		if truthy(l) {
			return true, nil
		}
		r, err := n.right.eval(env)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}

	l, err := n.left.eval(env)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(env)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return looseEqual(l, r), nil
	case "!=":
		return !looseEqual(l, r), nil
	}

	cmp, err := compare(l, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v %s %v", err, l, n.op, r)
	}
	switch n.op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func (n *unaryNode) eval(env *Env) (any, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "!":
		return !truthy(v), nil
	default: // unary minus
		f, ok := toNumber(v)
		if !ok {
			return nil, fmt.Errorf("%w: -%v", ErrNotComparable, v)
		}
		return -f, nil
	}
}

func (n *literalNode) eval(*Env) (any, error) {
	return n.value, nil
}

func (n *pathNode) eval(env *Env) (any, error) {
	return resolve(env, n.path), nil
}

func (n *callNode) eval(env *Env) (any, error) {
	switch n.name {
	case "len":
		if len(n.args) != 1 {
			return nil, fmt.Errorf("%w: len takes 1 argument",
				ErrBadArgumentCount)
		}
		v, err := n.args[0].eval(env)
		if err != nil {
			return nil, err
		}
		return length(v), nil
	case "contains":
		if len(n.args) != 2 {
			return nil, fmt.Errorf("%w: contains takes 2 arguments",
				ErrBadArgumentCount)
		}
		hay, err := n.args[0].eval(env)
		if err != nil {
			return nil, err
		}
		needle, err := n.args[1].eval(env)
		if err != nil {
			return nil, err
		}
		return containsValue(hay, needle), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, n.name)
	}
}

// resolve looks a dot-path up in the captured variables first, then in
// the response document. A leading "data." segment addresses the document
// explicitly. Missing keys yield nil, never an error
func resolve(env *Env, path string) any {
	if env.Vars != nil {
		if v, ok := env.Vars[path]; ok {
			return normalize(v)
		}
	}

	doc := path
	if doc == "data" {
		return documentRoot(env)
	}
	if rest, ok := strings.CutPrefix(doc, "data."); ok {
		doc = rest
	}

	if len(env.Document) == 0 {
		return nil
	}
	return resultValue(gjson.GetBytes(env.Document, doc))
}

func documentRoot(env *Env) any {
	if len(env.Document) == 0 {
		return nil
	}
	return resultValue(gjson.ParseBytes(env.Document))
}

func resultValue(res gjson.Result) any {
	if !res.Exists() && res.Type == gjson.Null {
		return nil
	}
	switch res.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return res.Num
	case gjson.String:
		return res.Str
	default:
		return res
	}
}

func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case gjson.Result:
		return t.Exists()
	default:
		return true
	}
}

func looseEqual(l, r any) bool {
	if lf, ok := toNumber(l); ok {
		if rf, ok := toNumber(r); ok {
			return lf == rf
		}
		return false
	}
	switch lt := l.(type) {
	case nil:
		return r == nil
	case bool:
		rb, ok := r.(bool)
		return ok && lt == rb
	case string:
		rs, ok := r.(string)
		return ok && lt == rs
	default:
		return false
	}
}

func compare(l, r any) (int, error) {
	if lf, ok := toNumber(l); ok {
		if rf, ok := toNumber(r); ok {
			switch {
			case lf < rf:
				return -1, nil
			case lf > rf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		switch {
		case ls < rs:
			return -1, nil
		case ls > rs:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, ErrNotComparable
}

func toNumber(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func length(v any) float64 {
	switch t := v.(type) {
	case string:
		return float64(len(t))
	case gjson.Result:
		if t.IsArray() {
			return float64(len(t.Array()))
		}
		if t.IsObject() {
			return float64(len(t.Map()))
		}
		return float64(len(t.String()))
	default:
		return 0
	}
}

func containsValue(hay, needle any) bool {
	switch t := hay.(type) {
	case string:
		ns, ok := needle.(string)
		return ok && ns != "" && strings.Contains(t, ns)
	case gjson.Result:
		if t.IsArray() {
			for _, el := range t.Array() {
				if looseEqual(resultValue(el), needle) {
					return true
				}
			}
			return false
		}
		ns, ok := needle.(string)
		return ok && strings.Contains(t.String(), ns)
	default:
		return false
	}
}

func parseNumber(text string) (float64, error) {
	return strconv.ParseFloat(text, 64)
}
