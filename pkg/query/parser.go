package query

import (
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/model"
)

var (
	ErrInvalidQuery = goerr.New("invalid boolean query")
)

// Term is a single operand of a boolean query. Keyword phrases are written
// between '@' marks, category types are bare tokens.
type Term struct {
	Text string
	Kind model.TermKind
}

func (t Term) String() string {
	if t.Kind == model.TermKindKeyword {
		return "@" + t.Text + "@"
	}
	return t.Text
}

// Clause is a normalized query: any of Included, and none of Excluded
type Clause struct {
	Included []Term
	Excluded []Term
}

// IsEmpty reports whether the clause has no term at all
func (c Clause) IsEmpty() bool {
	return len(c.Included) == 0 && len(c.Excluded) == 0
}

// String renders the clause back into boolean query syntax, e.g.
// "(a OR @b c@) AND NOT x"
func (c Clause) String() string {
	var b strings.Builder
	if len(c.Included) > 0 {
		parts := make([]string, len(c.Included))
		for i, t := range c.Included {
			parts[i] = t.String()
		}
		b.WriteString("(" + strings.Join(parts, " OR ") + ")")
	}
	for _, t := range c.Excluded {
		if b.Len() > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("NOT " + t.String())
	}
	return b.String()
}

// Filter returns the sub-clause made of terms of kind
func (c Clause) Filter(kind model.TermKind) Clause {
	var out Clause
	for _, t := range c.Included {
		if t.Kind == kind {
			out.Included = append(out.Included, t)
		}
	}
	for _, t := range c.Excluded {
		if t.Kind == kind {
			out.Excluded = append(out.Excluded, t)
		}
	}
	return out
}

func texts(terms []Term) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.Text
	}
	return out
}

type tokenKind int

const (
	tokLParen tokenKind = iota
	tokRParen
	tokAnd
	tokOr
	tokNot
	tokTerm
)

type token struct {
	kind tokenKind
	term Term
	pos  int
}

func tokenize(raw string) ([]token, error) {
	var tokens []token
	runes := []rune(raw)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, pos: i})
			i++
		case r == '@':
			end := i + 1
			for end < len(runes) && runes[end] != '@' {
				end++
			}
			if end >= len(runes) {
				return nil, goerr.Wrap(ErrInvalidQuery, "unterminated keyword phrase", goerr.V("pos", i))
			}
			text := strings.Join(strings.Fields(string(runes[i+1:end])), " ")
			if text == "" {
				return nil, goerr.Wrap(ErrInvalidQuery, "empty keyword phrase", goerr.V("pos", i))
			}
			tokens = append(tokens, token{kind: tokTerm, term: Term{Text: text, Kind: model.TermKindKeyword}, pos: i})
			i = end + 1
		default:
			end := i
			for end < len(runes) && !unicode.IsSpace(runes[end]) && runes[end] != '(' && runes[end] != ')' && runes[end] != '@' {
				end++
			}
			word := string(runes[i:end])
			switch word {
			case "AND":
				tokens = append(tokens, token{kind: tokAnd, pos: i})
			case "OR":
				tokens = append(tokens, token{kind: tokOr, pos: i})
			case "NOT":
				tokens = append(tokens, token{kind: tokNot, pos: i})
			default:
				tokens = append(tokens, token{kind: tokTerm, term: Term{Text: word, Kind: model.TermKindCategory}, pos: i})
			}
			i = end
		}
	}
	return tokens, nil
}

type nodeKind int

const (
	nodeTerm nodeKind = iota
	nodeAnd
	nodeOr
	nodeNot
)

type node struct {
	kind     nodeKind
	term     Term
	children []*node
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) parseOr() (*node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []*node{left}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOr {
			break
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &node{kind: nodeOr, children: children}, nil
}

func (p *parser) parseAnd() (*node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	children := []*node{left}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokAnd {
			break
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &node{kind: nodeAnd, children: children}, nil
}

func (p *parser) parseUnary() (*node, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, goerr.Wrap(ErrInvalidQuery, "unexpected end of query")
	}
	switch tok.kind {
	case tokNot:
		p.pos++
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &node{kind: nodeNot, children: []*node{child}}, nil
	case tokLParen:
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return nil, goerr.Wrap(ErrInvalidQuery, "missing closing parenthesis", goerr.V("pos", tok.pos))
		}
		p.pos++
		return inner, nil
	case tokTerm:
		p.pos++
		return &node{kind: nodeTerm, term: tok.term}, nil
	default:
		return nil, goerr.Wrap(ErrInvalidQuery, "unexpected operator", goerr.V("pos", tok.pos))
	}
}

// Parse reads a boolean query and normalizes it into a Clause. Supported
// shape is a disjunction of terms combined by AND with negated terms or
// negated disjunctions.
func Parse(raw string) (Clause, error) {
	tokens, err := tokenize(raw)
	if err != nil {
		return Clause{}, goerr.Wrap(err, "failed to tokenize query", goerr.V("query", raw))
	}
	if len(tokens) == 0 {
		return Clause{}, nil
	}

	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return Clause{}, goerr.Wrap(err, "failed to parse query", goerr.V("query", raw))
	}
	if tok, ok := p.peek(); ok {
		return Clause{}, goerr.Wrap(ErrInvalidQuery, "unexpected trailing token",
			goerr.V("query", raw), goerr.V("pos", tok.pos))
	}

	var c Clause
	if err := normalize(root, false, &c); err != nil {
		return Clause{}, goerr.Wrap(err, "unsupported query shape", goerr.V("query", raw))
	}
	c.Included = dedupeTerms(c.Included)
	c.Excluded = dedupeTerms(c.Excluded)
	return c, nil
}

func normalize(n *node, negated bool, c *Clause) error {
	switch n.kind {
	case nodeTerm:
		if negated {
			c.Excluded = append(c.Excluded, n.term)
		} else {
			c.Included = append(c.Included, n.term)
		}
		return nil

	case nodeNot:
		return normalize(n.children[0], !negated, c)

	case nodeOr:
		if negated {
			// NOT (a OR b) is NOT a AND NOT b
			for _, child := range n.children {
				if err := normalize(child, true, c); err != nil {
					return err
				}
			}
			return nil
		}
		for _, child := range n.children {
			var sub Clause
			if err := normalize(child, false, &sub); err != nil {
				return err
			}
			if len(sub.Excluded) > 0 {
				return goerr.Wrap(ErrInvalidQuery, "negation inside a disjunction is not supported")
			}
			c.Included = append(c.Included, sub.Included...)
		}
		return nil

	case nodeAnd:
		if negated {
			return goerr.Wrap(ErrInvalidQuery, "negated conjunction is not supported")
		}
		positive := 0
		for _, child := range n.children {
			var sub Clause
			if err := normalize(child, false, &sub); err != nil {
				return err
			}
			if len(sub.Included) > 0 {
				positive++
			}
			c.Included = append(c.Included, sub.Included...)
			c.Excluded = append(c.Excluded, sub.Excluded...)
		}
		if positive > 1 {
			return goerr.Wrap(ErrInvalidQuery, "conjunction of positive groups is not supported")
		}
		return nil
	}
	return goerr.Wrap(ErrInvalidQuery, "unknown node")
}

func dedupeTerms(terms []Term) []Term {
	var out []Term
	seen := make(map[Term]struct{}, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
