package kpi

import (
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/releasekpi/pkg/artifact"
	"github.com/ethpandaops/releasekpi/pkg/runstats"
)

// Calculator turns the artifacts of one release into KPI records.
type Calculator interface {
	Name() string
	Calculate(log logrus.FieldLogger, rel *Release) ([]Record, error)
}

// Compile-time interface checks.
var (
	_ Calculator = (*PlannedScope)(nil)
	_ Calculator = (*ExecutedCases)(nil)
	_ Calculator = (*ReleaseCoverage)(nil)
	_ Calculator = (*ReleaseResults)(nil)
	_ Calculator = (*ExecutionRates)(nil)
	_ Calculator = (*TotalExecuted)(nil)
)

// DefaultCalculators returns the built-in calculators in registration order.
func DefaultCalculators() []Calculator {
	return []Calculator{
		&PlannedScope{},
		&ExecutedCases{},
		&ReleaseCoverage{},
		&ReleaseResults{},
		&ExecutionRates{},
		&TotalExecuted{},
	}
}

// SumPlanned returns the sum of cases_count over plans. Negative counts
// are ignored.
func SumPlanned(plans []artifact.Plan) int64 {
	var total int64

	for _, p := range plans {
		if p.CasesCount > 0 {
			total += p.CasesCount
		}
	}

	return total
}

// PlannedScope reports the number of planned cases.
type PlannedScope struct{}

func (c *PlannedScope) Name() string { return "planned_scope" }

func (c *PlannedScope) Calculate(log logrus.FieldLogger, rel *Release) ([]Record, error) {
	if rel == nil {
		return nil, ErrNoRelease
	}

	planned := SumPlanned(rel.Plans)
	if planned == 0 {
		log.WithFields(logrus.Fields{
			"project": rel.Project,
			"release": rel.OfficialID,
			"plans":   len(rel.Plans),
		}).Error("Planned scope is zero")
	}

	return []Record{rel.count(KeyPlannedScope, "Planned Scope",
		"Total number of test cases planned for the release", planned)}, nil
}

// ExecutedCases reports the reconciled executed count over all runs.
type ExecutedCases struct{}

func (c *ExecutedCases) Name() string { return "executed_cases" }

func (c *ExecutedCases) Calculate(_ logrus.FieldLogger, rel *Release) ([]Record, error) {
	if rel == nil {
		return nil, ErrNoRelease
	}

	stats := runstats.NormalizeRuns(rel.Runs)

	return []Record{rel.count(KeyExecutedCases, "Executed Cases",
		"Reconciled number of executed test cases", stats.ExecutedCases)}, nil
}

// ReleaseCoverage reports executed cases as a share of the planned scope.
type ReleaseCoverage struct{}

func (c *ReleaseCoverage) Name() string { return "release_coverage" }

func (c *ReleaseCoverage) Calculate(log logrus.FieldLogger, rel *Release) ([]Record, error) {
	if rel == nil {
		return nil, ErrNoRelease
	}

	planned := SumPlanned(rel.Plans)
	executed := runstats.NormalizeRuns(rel.Runs).ExecutedCases

	var value float64
	if planned > 0 && executed > 0 {
		value = RatioPercent(executed, planned)
	}

	if executed > planned && planned > 0 {
		log.WithFields(logrus.Fields{
			"project":  rel.Project,
			"release":  rel.OfficialID,
			"executed": executed,
			"planned":  planned,
		}).Warn("Executed cases exceed planned scope")
	}

	return []Record{rel.percent(KeyReleaseCoverage, "Release Coverage",
		"Executed cases over planned scope", value)}, nil
}

// ReleaseResults reports the distribution of result statuses over the
// executed cases.
type ReleaseResults struct{}

func (c *ReleaseResults) Name() string { return "release_results" }

func (c *ReleaseResults) Calculate(log logrus.FieldLogger, rel *Release) ([]Record, error) {
	if rel == nil {
		return nil, ErrNoRelease
	}

	stats := runstats.NormalizeRuns(rel.Runs)
	executed := stats.ExecutedCases

	if executed <= 0 {
		log.WithFields(logrus.Fields{
			"project": rel.Project,
			"release": rel.OfficialID,
			"runs":    len(rel.Runs),
		}).Warn("No executed cases, result distribution is zero")
	}

	pct := func(n int64) float64 {
		if executed <= 0 {
			return 0
		}

		return RatioPercent(n, executed)
	}

	return []Record{
		rel.percent(KeyPassedPct, "Passed %",
			"Passed cases over executed cases", pct(stats.Passed)),
		rel.percent(KeyFailedPct, "Failed %",
			"Failed cases over executed cases", pct(stats.Failed)),
		rel.percent(KeyBlockedPct, "Blocked %",
			"Blocked cases over executed cases", pct(stats.Blocked)),
		rel.percent(KeySkippedPct, "Skipped %",
			"Skipped cases over executed cases", pct(stats.Skipped)),
		rel.percent(KeyRetestPct, "Retest %",
			"Retest cases over executed cases", pct(stats.Retest)),
	}, nil
}

// ExecutionRates reports each status over all attempted or pending cases.
type ExecutionRates struct{}

func (c *ExecutionRates) Name() string { return "execution_rates" }

func (c *ExecutionRates) Calculate(_ logrus.FieldLogger, rel *Release) ([]Record, error) {
	if rel == nil {
		return nil, ErrNoRelease
	}

	stats := runstats.NormalizeRuns(rel.Runs)

	denominator := stats.Passed + stats.Failed + stats.Blocked +
		stats.Skipped + stats.UntestedCases
	if denominator == 0 {
		denominator = 1
	}

	return []Record{
		rel.percent(KeyPassedRate, "Passed Rate",
			"Passed cases over all cases", RatioPercent(stats.Passed, denominator)),
		rel.percent(KeyFailedRate, "Failed Rate",
			"Failed cases over all cases", RatioPercent(stats.Failed, denominator)),
		rel.percent(KeyBlockedRate, "Blocked Rate",
			"Blocked cases over all cases", RatioPercent(stats.Blocked, denominator)),
		rel.percent(KeySkippedRate, "Skipped Rate",
			"Skipped cases over all cases", RatioPercent(stats.Skipped, denominator)),
		rel.percent(KeyUnexecutedRate, "Unexecuted Rate",
			"Untested cases over all cases", RatioPercent(stats.UntestedCases, denominator)),
	}, nil
}

// TotalExecuted reports passed+failed+blocked+skipped as an absolute count.
type TotalExecuted struct{}

func (c *TotalExecuted) Name() string { return "total_executed" }

func (c *TotalExecuted) Calculate(_ logrus.FieldLogger, rel *Release) ([]Record, error) {
	if rel == nil {
		return nil, ErrNoRelease
	}

	stats := runstats.NormalizeRuns(rel.Runs)

	return []Record{rel.count(KeyTotalExecuted, "Total Executed",
		"Passed, failed, blocked and skipped cases",
		stats.Passed+stats.Failed+stats.Blocked+stats.Skipped)}, nil
}
