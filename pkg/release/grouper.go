package release

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Titled is implemented by any artifact that carries a free-text title.
type Titled interface {
	GetTitle() string
}

// Groups is an insertion-ordered mapping of officialId to the artifacts
// whose titles resolved to it.
type Groups[T Titled] struct {
	Order      []string
	ByRelease  map[string][]T
	Identities map[string]Identity
	Skipped    int
}

// Releases returns the officialIds in first-seen order.
func (g *Groups[T]) Releases() []string {
	out := make([]string, len(g.Order))
	copy(out, g.Order)

	return out
}

// Get returns the artifacts grouped under officialID.
func (g *Groups[T]) Get(officialID string) []T {
	return g.ByRelease[officialID]
}

// Active returns the most recent release under cmp, or fallback when no
// artifact title parsed.
func (g *Groups[T]) Active(cmp Comparator, fallback string) string {
	return DetectActiveRelease(g.Order, cmp, fallback)
}

// GroupByRelease parses each artifact title and groups the survivors by
// officialId. Artifacts whose title does not parse are skipped.
func GroupByRelease[T Titled](
	log logrus.FieldLogger,
	parser *Parser,
	items []T,
	project string,
) *Groups[T] {
	g := &Groups[T]{
		ByRelease:  make(map[string][]T, 4),
		Identities: make(map[string]Identity, 4),
	}

	for _, item := range items {
		id, ok := parser.Parse(item.GetTitle())
		if !ok {
			g.Skipped++

			log.WithFields(logrus.Fields{
				"project": project,
				"title":   item.GetTitle(),
			}).Debug("Skipping artifact with unparseable title")

			continue
		}

		if _, seen := g.ByRelease[id.OfficialID]; !seen {
			g.Order = append(g.Order, id.OfficialID)
			g.Identities[id.OfficialID] = id
		}

		g.ByRelease[id.OfficialID] = append(g.ByRelease[id.OfficialID], item)
	}

	return g
}

// Comparator orders two officialIds; a positive result means a is more
// recent than b.
type Comparator func(a, b string) int

// Lexicographic compares identifiers as plain strings. It picks the true
// latest release only when the grammar yields fixed-width, monotonically
// increasing identifiers such as zero-padded dates.
func Lexicographic(a, b string) int {
	return strings.Compare(a, b)
}

// Natural compares identifiers segment by segment, treating runs of digits
// as numbers so that "R10" sorts after "R9".
func Natural(a, b string) int {
	for a != "" && b != "" {
		ca, cb := a[0], b[0]

		if isDigit(ca) && isDigit(cb) {
			na, restA := splitDigits(a)
			nb, restB := splitDigits(b)

			if c := compareNumeric(na, nb); c != 0 {
				return c
			}

			a, b = restA, restB

			continue
		}

		if ca != cb {
			if ca < cb {
				return -1
			}

			return 1
		}

		a, b = a[1:], b[1:]
	}

	return len(a) - len(b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func splitDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}

	return s[:i], s[i:]
}

func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")

	if len(a) != len(b) {
		return len(a) - len(b)
	}

	return strings.Compare(a, b)
}

// ComparatorByName resolves a configured ordering name.
func ComparatorByName(name string) (Comparator, error) {
	switch name {
	case "", "lexicographic":
		return Lexicographic, nil
	case "natural":
		return Natural, nil
	default:
		return nil, fmt.Errorf("unknown release ordering %q", name)
	}
}

// SortDescending orders ids most recent first under cmp, in place.
func SortDescending(ids []string, cmp Comparator) {
	if cmp == nil {
		cmp = Lexicographic
	}

	sort.SliceStable(ids, func(i, j int) bool {
		return cmp(ids[i], ids[j]) > 0
	})
}

// DetectActiveRelease returns the most recent of ids under cmp, or fallback
// when ids is empty.
func DetectActiveRelease(ids []string, cmp Comparator, fallback string) string {
	if len(ids) == 0 {
		return fallback
	}

	sorted := make([]string, len(ids))
	copy(sorted, ids)
	SortDescending(sorted, cmp)

	return sorted[0]
}
