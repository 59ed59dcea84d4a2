package artifact

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Plan is a test plan document: a title and the number of cases planned.
type Plan struct {
	ID         string `mapstructure:"id" json:"id,omitempty"`
	Title      string `mapstructure:"title" json:"title"`
	CasesCount int64  `mapstructure:"cases_count" json:"cases_count"`
}

// GetTitle implements release.Titled.
func (p Plan) GetTitle() string { return p.Title }

// Run is a test run document: a title and its raw execution counters.
type Run struct {
	ID       string   `mapstructure:"id" json:"id,omitempty"`
	Title    string   `mapstructure:"title" json:"title"`
	Counters Counters `mapstructure:"stats" json:"stats"`
}

// GetTitle implements release.Titled.
func (r Run) GetTitle() string { return r.Title }

// Counters are the raw, untrusted execution counters of a run. Values may
// be negative or inconsistent with each other; see runstats.Normalize.
type Counters struct {
	Total      int64 `mapstructure:"total" json:"total"`
	Untested   int64 `mapstructure:"untested" json:"untested"`
	Passed     int64 `mapstructure:"passed" json:"passed"`
	Failed     int64 `mapstructure:"failed" json:"failed"`
	Blocked    int64 `mapstructure:"blocked" json:"blocked"`
	Skipped    int64 `mapstructure:"skipped" json:"skipped"`
	Retest     int64 `mapstructure:"retest" json:"retest"`
	Invalid    int64 `mapstructure:"invalid" json:"invalid"`
	InProgress int64 `mapstructure:"in_progress" json:"in_progress"`
}

// Set is the plans and runs collected for one project.
type Set struct {
	Plans []Plan
	Runs  []Run
}

// Empty reports whether the set carries no documents.
func (s Set) Empty() bool {
	return len(s.Plans) == 0 && len(s.Runs) == 0
}

// DecodePlans decodes a JSON array of plan documents.
func DecodePlans(data []byte) ([]Plan, error) {
	var plans []Plan
	if err := decodeDocuments(data, &plans); err != nil {
		return nil, fmt.Errorf("decoding plans: %w", err)
	}

	return plans, nil
}

// DecodeRuns decodes a JSON array of run documents.
func DecodeRuns(data []byte) ([]Run, error) {
	var runs []Run
	if err := decodeDocuments(data, &runs); err != nil {
		return nil, fmt.Errorf("decoding runs: %w", err)
	}

	return runs, nil
}

// decodeDocuments accepts either a bare array or an object wrapping the
// array under "plans", "runs" or "items". Counter fields are decoded
// leniently: strings are parsed, and anything unparsable becomes zero.
func decodeDocuments(data []byte, out any) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing json: %w", err)
	}

	if obj, ok := raw.(map[string]any); ok {
		raw = nil

		for _, key := range []string{"plans", "runs", "items"} {
			if v, found := obj[key]; found {
				raw = v

				break
			}
		}
	}

	if raw == nil {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       lenientIntHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}

	return decoder.Decode(raw)
}

var int64Type = reflect.TypeOf(int64(0))

// lenientIntHook converts any source value destined for an int64 field into
// a best-effort integer, falling back to zero.
func lenientIntHook(from, to reflect.Type, data any) (any, error) {
	if to != int64Type {
		return data, nil
	}

	return toInt64(data), nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}

		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	case bool:
		return 0
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}

		if f, err := strconv.ParseFloat(s, 64); err == nil &&
			!math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f)
		}

		return 0
	default:
		return 0
	}
}
