package release

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethpandaops/releasekpi/pkg/config"
)

// Identity is a release identity recovered from an artifact title. Optional
// attributes are empty when absent from the title or not allow-listed.
type Identity struct {
	Version     string `json:"version"`
	Environment string `json:"environment"`
	Platform    string `json:"platform,omitempty"`
	Language    string `json:"language,omitempty"`
	TestType    string `json:"test_type,omitempty"`
	Sprint      string `json:"sprint,omitempty"`
	RawTitle    string `json:"raw_title"`
	OfficialID  string `json:"official_id"`
}

// Rules holds the per-token validation applied after normalization.
type Rules struct {
	VersionPattern *regexp.Regexp
	Environments   []string
	Platforms      []string
	Languages      []string
	TestTypes      []string
	Sprints        []string
}

type allowList map[string]struct{}

func newAllowList(values []string) allowList {
	l := make(allowList, len(values))
	for _, v := range values {
		if n := NormalizeSegment(v); n != "" {
			l[n] = struct{}{}
		}
	}

	return l
}

func (l allowList) has(v string) bool {
	_, ok := l[v]

	return ok
}

// Parser recovers release identities from titles. It is immutable after
// construction and safe for concurrent use.
type Parser struct {
	grammar        *Grammar
	versionPattern *regexp.Regexp
	allowed        map[string]allowList
}

// NewParser builds a parser from a compiled grammar and its validation
// rules. A nil grammar yields an inoperable parser that never matches.
func NewParser(grammar *Grammar, rules Rules) *Parser {
	return &Parser{
		grammar:        grammar,
		versionPattern: rules.VersionPattern,
		allowed: map[string]allowList{
			TokenEnvironment: newAllowList(rules.Environments),
			TokenPlatform:    newAllowList(rules.Platforms),
			TokenLanguage:    newAllowList(rules.Languages),
			TokenTestType:    newAllowList(rules.TestTypes),
			TokenSprint:      newAllowList(rules.Sprints),
		},
	}
}

// NewParserFromConfig compiles the configured grammar through cache and
// builds a parser. Grammar errors surface here, once, rather than per title.
func NewParserFromConfig(
	cache *GrammarCache, cfg *config.ReleaseConfig,
) (*Parser, error) {
	grammar, err := cache.Get()
	if err != nil {
		return nil, err
	}

	pattern, err := regexp.Compile(cfg.VersionPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling version pattern: %w", err)
	}

	return NewParser(grammar, Rules{
		VersionPattern: pattern,
		Environments:   cfg.Environments,
		Platforms:      cfg.Platforms,
		Languages:      cfg.Languages,
		TestTypes:      cfg.TestTypes,
		Sprints:        cfg.Sprints,
	}), nil
}

// Operable reports whether the parser has a usable grammar.
func (p *Parser) Operable() bool {
	return p != nil && p.grammar != nil
}

// Parse recovers the identity encoded in title. Segments are matched to
// grammar tokens by position; extra segments are ignored.
func (p *Parser) Parse(title string) (Identity, bool) {
	if !p.Operable() || strings.TrimSpace(title) == "" {
		return Identity{}, false
	}

	segments := strings.Split(title, Separator)
	id := Identity{RawTitle: title}

	for i, token := range p.grammar.tokens {
		var value string
		if i < len(segments) {
			value = NormalizeSegment(segments[i])
		}

		switch token {
		case TokenVersion:
			if value == "" || !p.validVersion(value) {
				return Identity{}, false
			}

			id.Version = value
		case TokenEnvironment:
			if value == "" || !p.allowed[TokenEnvironment].has(value) {
				return Identity{}, false
			}

			id.Environment = value
		case TokenPlatform:
			id.Platform = p.optional(TokenPlatform, value)
		case TokenLanguage:
			id.Language = p.optional(TokenLanguage, value)
		case TokenTestType:
			id.TestType = p.optional(TokenTestType, value)
		case TokenSprint:
			id.Sprint = p.optional(TokenSprint, value)
		}
	}

	id.OfficialID = OfficialID(id.Version, id.Environment)

	return id, true
}

func (p *Parser) validVersion(v string) bool {
	if p.versionPattern == nil {
		return true
	}

	return p.versionPattern.MatchString(v)
}

func (p *Parser) optional(token, value string) string {
	if value == "" || !p.allowed[token].has(value) {
		return ""
	}

	return value
}

// OfficialID joins an already normalized version and environment.
func OfficialID(version, environment string) string {
	return version + Separator + environment
}
