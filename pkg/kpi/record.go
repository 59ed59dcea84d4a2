package kpi

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ethpandaops/releasekpi/pkg/artifact"
)

// KPI keys. These are stable identifiers used as snapshot keys.
const (
	KeyPlannedScope    = "plannedScope"
	KeyExecutedCases   = "executedCases"
	KeyReleaseCoverage = "releaseCoverage"
	KeyPassedPct       = "releaseResults.passedPct"
	KeyFailedPct       = "releaseResults.failedPct"
	KeyBlockedPct      = "releaseResults.blockedPct"
	KeySkippedPct      = "releaseResults.skippedPct"
	KeyRetestPct       = "releaseResults.retestPct"
	KeyPassedRate      = "passedRate"
	KeyFailedRate      = "failedRate"
	KeyBlockedRate     = "blockedRate"
	KeySkippedRate     = "skippedRate"
	KeyUnexecutedRate  = "unexecutedRate"
	KeyTotalExecuted   = "totalExecuted"
)

// Trend symbols comparing a value with the previous snapshot of its key.
const (
	TrendUp   = "▲"
	TrendDown = "▼"
	TrendFlat = "="
	TrendNone = "-"
)

// ErrNoRelease is returned when a calculator is invoked without a release
// context. It indicates a caller bug.
var ErrNoRelease = errors.New("kpi: release context is required")

// Record is one computed indicator for a project release.
type Record struct {
	Key            string    `json:"key" yaml:"key"`
	Name           string    `json:"name" yaml:"name"`
	Value          float64   `json:"value" yaml:"value"`
	FormattedValue string    `json:"formatted_value" yaml:"formatted_value"`
	TrendSymbol    string    `json:"trend_symbol" yaml:"trend_symbol"`
	Description    string    `json:"description" yaml:"description"`
	Percent        bool      `json:"percent" yaml:"percent"`
	Project        string    `json:"project" yaml:"project"`
	Release        string    `json:"release" yaml:"release"`
	ComputedAt     time.Time `json:"computed_at" yaml:"computed_at"`
}

// Release is the input of every calculator: the artifacts grouped under
// one officialId of one project.
type Release struct {
	Project    string
	OfficialID string
	Plans      []artifact.Plan
	Runs       []artifact.Run
	ComputedAt time.Time
}

func (r *Release) percent(key, name, description string, value float64) Record {
	v := RoundPercent(value)

	return Record{
		Key:            key,
		Name:           name,
		Value:          v,
		FormattedValue: FormatPercent(v),
		TrendSymbol:    TrendNone,
		Description:    description,
		Percent:        true,
		Project:        r.Project,
		Release:        r.OfficialID,
		ComputedAt:     r.ComputedAt,
	}
}

func (r *Release) count(key, name, description string, value int64) Record {
	return Record{
		Key:            key,
		Name:           name,
		Value:          float64(value),
		FormattedValue: FormatCount(value),
		TrendSymbol:    TrendNone,
		Description:    description,
		Project:        r.Project,
		Release:        r.OfficialID,
		ComputedAt:     r.ComputedAt,
	}
}

// RoundPercent rounds half-up to two decimals. Every percent KPI uses it.
func RoundPercent(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	return math.Round(v*100) / 100
}

// RatioPercent returns part/whole*100 rounded half-up to two decimals, or 0
// when whole <= 0. Rounding happens on the integers so that midpoints such
// as 23/160 (14.375) do not fall to float error.
func RatioPercent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}

	if part < 0 {
		return -RatioPercent(-part, whole)
	}

	return float64((part*20000+whole)/(2*whole)) / 100
}

// FormatPercent renders a percent value with two decimals.
func FormatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "%"
}

// FormatCount renders an absolute count.
func FormatCount(v int64) string {
	return strconv.FormatInt(v, 10)
}

// TrendSymbol compares cur with the previous value of the same key.
func TrendSymbol(prev *Record, cur float64) string {
	if prev == nil {
		return TrendNone
	}

	switch {
	case cur > prev.Value:
		return TrendUp
	case cur < prev.Value:
		return TrendDown
	default:
		return TrendFlat
	}
}

// String is used in log output.
func (r Record) String() string {
	return fmt.Sprintf("%s/%s %s=%s", r.Project, r.Release, r.Key, r.FormattedValue)
}
