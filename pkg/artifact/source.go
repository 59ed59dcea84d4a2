package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ethpandaops/releasekpi/pkg/config"
	"golang.org/x/sync/errgroup"
)

const (
	// PlansFile holds the plan documents of a project.
	PlansFile = "plans.json"
	// RunsFile holds the run documents of a project.
	RunsFile = "runs.json"
)

// Source provides read access to consolidated plan/run documents stored
// per project in a backend (local filesystem or S3).
type Source interface {
	// Projects returns the project keys available in the backend, sorted.
	Projects(ctx context.Context) ([]string, error)

	// ReadFile reads a file for a project.
	// Returns (nil, nil) when the file does not exist.
	ReadFile(ctx context.Context, project, filename string) ([]byte, error)
}

// NewSource creates the Source for the enabled backend.
func NewSource(cfg *config.SourceConfig) (Source, error) {
	switch {
	case cfg.S3 != nil && cfg.S3.Enabled:
		return NewS3Source(cfg.S3), nil
	case cfg.Local != nil && cfg.Local.Enabled:
		return NewLocalSource(cfg.Local), nil
	default:
		return nil, fmt.Errorf("no artifact source configured")
	}
}

// Load reads and decodes the plans and runs of one project. Missing files
// yield empty collections.
func Load(ctx context.Context, src Source, project string) (Set, error) {
	var (
		set                Set
		plansData, runData []byte
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		plansData, err = src.ReadFile(gCtx, project, PlansFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", PlansFile, err)
		}

		return nil
	})

	g.Go(func() error {
		var err error

		runData, err = src.ReadFile(gCtx, project, RunsFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", RunsFile, err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return Set{}, err
	}

	plans, err := DecodePlans(plansData)
	if err != nil {
		return Set{}, err
	}

	runs, err := DecodeRuns(runData)
	if err != nil {
		return Set{}, err
	}

	set.Plans = plans
	set.Runs = runs

	return set, nil
}

// LoadAll loads several projects with bounded parallelism. A project that
// fails to load is reported in the returned error map and left out of the
// result; it does not stop the others.
func LoadAll(
	ctx context.Context,
	src Source,
	projects []string,
	concurrency int,
) (map[string]Set, map[string]error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu   sync.Mutex
		sets = make(map[string]Set, len(projects))
		errs = make(map[string]error)
		g    errgroup.Group
	)

	g.SetLimit(concurrency)

	for _, project := range projects {
		g.Go(func() error {
			set, err := Load(ctx, src, project)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errs[project] = err

				return nil
			}

			sets[project] = set

			return nil
		})
	}

	_ = g.Wait()

	return sets, errs
}

// Compile-time interface check.
var _ Source = (*localSource)(nil)

type localSource struct {
	root string
}

// NewLocalSource creates a Source reading {root}/{project}/{file}.
func NewLocalSource(cfg *config.LocalSourceConfig) Source {
	return &localSource{root: cfg.Root}
}

// Projects returns the sorted directory names under root.
func (s *localSource) Projects(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading source root: %w", err)
	}

	projects := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			projects = append(projects, e.Name())
		}
	}

	sort.Strings(projects)

	return projects, nil
}

// ReadFile reads {root}/{project}/{filename}.
func (s *localSource) ReadFile(
	_ context.Context, project, filename string,
) ([]byte, error) {
	if project == "" || project == "." || project == ".." ||
		filepath.Base(project) != project {
		return nil, fmt.Errorf("invalid project key %q", project)
	}

	p := filepath.Join(s.root, project, filename)

	data, err := os.ReadFile(p) //nolint:gosec // trusted root from config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading file %s: %w", p, err)
	}

	return data, nil
}
