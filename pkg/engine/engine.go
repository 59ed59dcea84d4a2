package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/releasekpi/pkg/artifact"
	"github.com/ethpandaops/releasekpi/pkg/kpi"
	"github.com/ethpandaops/releasekpi/pkg/release"
	"github.com/ethpandaops/releasekpi/pkg/snapshot"
)

// DefaultConcurrency bounds the number of projects computed in parallel.
const DefaultConcurrency = 4

// Options tunes the engine. Now stamps computed records and defaults to
// time.Now in UTC.
type Options struct {
	Concurrency int
	Now         func() time.Time
}

// Engine computes KPIs for the active release of every project and
// persists them.
type Engine struct {
	log         logrus.FieldLogger
	parser      *release.Parser
	cmp         release.Comparator
	calculators []kpi.Calculator
	store       snapshot.Store
	opts        Options
}

// Result is the outcome for one project.
type Result struct {
	Project   string
	Release   string
	Records   []kpi.Record
	Persisted bool
}

// New creates an Engine. A nil store disables trend lookup and persistence.
func New(
	log logrus.FieldLogger,
	parser *release.Parser,
	cmp release.Comparator,
	calculators []kpi.Calculator,
	store snapshot.Store,
	opts Options,
) *Engine {
	if cmp == nil {
		cmp = release.Lexicographic
	}

	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Engine{
		log:         log.WithField("component", "engine"),
		parser:      parser,
		cmp:         cmp,
		calculators: calculators,
		store:       store,
		opts:        opts,
	}
}

// CalculateForAllProjects computes every project independently and returns
// project -> records. A failing project is logged and maps to whatever it
// produced before failing; it never aborts the others.
func (e *Engine) CalculateForAllProjects(
	ctx context.Context,
	sets map[string]artifact.Set,
	fallback string,
) (map[string][]kpi.Record, error) {
	results, err := e.Run(ctx, sets, fallback)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]kpi.Record, len(results))
	for _, r := range results {
		out[r.Project] = r.Records
	}

	return out, nil
}

// Run is CalculateForAllProjects returning per-project detail, ordered by
// project name.
func (e *Engine) Run(
	ctx context.Context,
	sets map[string]artifact.Set,
	fallback string,
) ([]Result, error) {
	projects := make([]string, 0, len(sets))
	for p := range sets {
		projects = append(projects, p)
	}

	sort.Strings(projects)

	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(projects))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for _, project := range projects {
		set := sets[project]

		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			res := e.CalculateProject(gctx, project, set, fallback)

			mu.Lock()
			results = append(results, res)
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("calculating projects: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Project < results[j].Project
	})

	return results, nil
}

// CalculateProject computes the active release of one project. Calculator
// and persistence failures are logged and isolated.
func (e *Engine) CalculateProject(
	ctx context.Context,
	project string,
	set artifact.Set,
	fallback string,
) Result {
	log := e.log.WithField("project", project)
	res := Result{Project: project}

	plans := release.GroupByRelease(log, e.parser, set.Plans, project)
	runs := release.GroupByRelease(log, e.parser, set.Runs, project)

	// Plans pick the release; runs only when no plan title parses.
	active := plans.Active(e.cmp, runs.Active(e.cmp, fallback))
	if active == "" {
		log.WithField("skipped_plans", plans.Skipped).
			Warn("No release detected and no fallback configured")

		return res
	}

	if len(plans.Get(active)) == 0 && len(runs.Get(active)) == 0 {
		log.WithFields(logrus.Fields{
			"release":       active,
			"skipped_plans": plans.Skipped,
			"skipped_runs":  runs.Skipped,
		}).Warn("No artifacts for release")

		return res
	}

	res.Release = active

	rel := &kpi.Release{
		Project:    project,
		OfficialID: active,
		Plans:      plans.Get(active),
		Runs:       runs.Get(active),
		ComputedAt: e.opts.Now(),
	}

	for _, c := range e.calculators {
		records, err := e.runCalculator(log, c, rel)
		if err != nil {
			log.WithError(err).
				WithField("calculator", c.Name()).
				Error("Calculator failed")

			continue
		}

		res.Records = append(res.Records, records...)
	}

	if e.store == nil {
		return res
	}

	e.fillTrends(ctx, log, res.Records)

	if err := e.store.Upsert(ctx, project, active, res.Records); err != nil {
		log.WithError(err).
			WithField("release", active).
			Error("Failed to persist KPI snapshots")

		return res
	}

	res.Persisted = true

	log.WithFields(logrus.Fields{
		"release": active,
		"records": len(res.Records),
	}).Info("Computed KPIs")

	return res
}

// runCalculator recovers panics so that one broken calculator only drops
// its own records.
func (e *Engine) runCalculator(
	log logrus.FieldLogger, c kpi.Calculator, rel *kpi.Release,
) (records []kpi.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("calculator %s panicked: %v", c.Name(), r)
		}
	}()

	return c.Calculate(log, rel)
}

// fillTrends compares each record with the last stored value of its key.
func (e *Engine) fillTrends(
	ctx context.Context, log logrus.FieldLogger, records []kpi.Record,
) {
	for i := range records {
		prev, err := e.store.Last(ctx, records[i].Project, records[i].Key)

		switch {
		case errors.Is(err, snapshot.ErrNotFound):
			records[i].TrendSymbol = kpi.TrendSymbol(nil, records[i].Value)
		case err != nil:
			log.WithError(err).
				WithField("key", records[i].Key).
				Warn("Failed to read previous snapshot")
		default:
			records[i].TrendSymbol = kpi.TrendSymbol(&prev, records[i].Value)
		}
	}
}
