package release

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Token names understood by the parser. Placeholders with any other name
// occupy a position in the grammar but carry no value.
const (
	TokenVersion     = "version"
	TokenEnvironment = "environment"
	TokenPlatform    = "platform"
	TokenLanguage    = "language"
	TokenTestType    = "testType"
	TokenSprint      = "sprint"
)

// Separator splits both grammars and titles into positional segments.
const Separator = "_"

// ErrInvalidGrammar is returned when a grammar expression cannot be used
// to recover a release identity.
var ErrInvalidGrammar = errors.New("invalid release grammar")

var placeholderRe = regexp.MustCompile(`^\$\{([A-Za-z][A-Za-z0-9]*)\}$`)

// Grammar is a compiled, immutable, ordered list of placeholder tokens.
type Grammar struct {
	expr   string
	tokens []string
}

// ParseGrammar compiles an underscore-delimited placeholder expression such
// as "${version}_${environment}_${platform}".
func ParseGrammar(expr string) (*Grammar, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidGrammar)
	}

	parts := strings.Split(expr, Separator)
	tokens := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))

	for i, part := range parts {
		m := placeholderRe.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			return nil, fmt.Errorf(
				"%w: position %d (%q) is not a ${name} placeholder",
				ErrInvalidGrammar, i, part,
			)
		}

		name := m[1]
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf(
				"%w: duplicate placeholder %q", ErrInvalidGrammar, name,
			)
		}

		seen[name] = struct{}{}
		tokens = append(tokens, name)
	}

	for _, required := range []string{TokenVersion, TokenEnvironment} {
		if _, ok := seen[required]; !ok {
			return nil, fmt.Errorf(
				"%w: missing ${%s} placeholder", ErrInvalidGrammar, required,
			)
		}
	}

	return &Grammar{expr: expr, tokens: tokens}, nil
}

// Tokens returns a copy of the ordered token names.
func (g *Grammar) Tokens() []string {
	out := make([]string, len(g.tokens))
	copy(out, g.tokens)

	return out
}

// Len returns the number of positions in the grammar.
func (g *Grammar) Len() int {
	return len(g.tokens)
}

// String returns the source expression.
func (g *Grammar) String() string {
	return g.expr
}

// GrammarCache compiles a grammar expression exactly once and hands out the
// same immutable *Grammar to every caller.
type GrammarCache struct {
	expr    string
	once    sync.Once
	grammar *Grammar
	err     error
}

// NewGrammarCache creates a cache for expr. Compilation is deferred to the
// first Get.
func NewGrammarCache(expr string) *GrammarCache {
	return &GrammarCache{expr: expr}
}

// Get returns the compiled grammar, compiling it on first use.
func (c *GrammarCache) Get() (*Grammar, error) {
	c.once.Do(func() {
		c.grammar, c.err = ParseGrammar(c.expr)
	})

	return c.grammar, c.err
}
