package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ethpandaops/releasekpi/pkg/config"
	"github.com/ethpandaops/releasekpi/pkg/kpi"
	"github.com/ethpandaops/releasekpi/pkg/release"
)

// ErrNotFound is returned when no snapshot exists for a query.
var ErrNotFound = errors.New("snapshot not found")

// Store provides persistence for KPI snapshots.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Upsert writes every record under (project, officialID, record.Key),
	// replacing the current snapshot and appending to the history log.
	Upsert(
		ctx context.Context, project, officialID string, records []kpi.Record,
	) error
	// Last returns the most recently written value of key across all
	// releases of the project.
	Last(ctx context.Context, project, key string) (kpi.Record, error)
	// Trend returns every write of key ordered by write time ascending.
	Trend(ctx context.Context, project, key string) ([]kpi.Record, error)
	// Panel returns the current snapshot of each key for at most
	// maxReleases releases, newest release first. maxReleases <= 0 means
	// unlimited.
	Panel(
		ctx context.Context, project string, keys []string, maxReleases int,
	) ([]kpi.Record, error)
	// Releases lists the releases with snapshots, newest first.
	Releases(ctx context.Context, project string) ([]string, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	cmp release.Comparator
	db  *gorm.DB
	now func() time.Time

	mu       sync.Mutex
	projects map[string]*sync.Mutex
}

// NewStore creates a new snapshot Store backed by the configured database
// driver. Releases are ordered with cmp; nil means lexicographic.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
	cmp release.Comparator,
) Store {
	if cmp == nil {
		cmp = release.Lexicographic
	}

	return &store{
		log:      log.WithField("component", "snapshot"),
		cfg:      cfg,
		cmp:      cmp,
		now:      func() time.Time { return time.Now().UTC() },
		projects: make(map[string]*sync.Mutex),
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening snapshot database: %w", err)
	}

	// SQLite allows a single writer, and every ":memory:" connection is a
	// separate database.
	if s.cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&LogEntry{},
		&Snapshot{},
	); err != nil {
		return fmt.Errorf("running snapshot migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Info("Snapshot database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// projectLock returns the writer lock of a project.
func (s *store) projectLock(project string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.projects[project]
	if !ok {
		l = &sync.Mutex{}
		s.projects[project] = l
	}

	return l
}

// Upsert appends one log entry per record and repoints the current
// snapshot of each key at it, all in a single transaction.
func (s *store) Upsert(
	ctx context.Context, project, officialID string, records []kpi.Record,
) error {
	if len(records) == 0 {
		return nil
	}

	l := s.projectLock(project)
	l.Lock()
	defer l.Unlock()

	writtenAt := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range records {
			entry := &LogEntry{
				Project:        project,
				OfficialID:     officialID,
				KPIKey:         r.Key,
				Name:           r.Name,
				Value:          r.Value,
				FormattedValue: r.FormattedValue,
				TrendSymbol:    r.TrendSymbol,
				Description:    r.Description,
				Percent:        r.Percent,
				ComputedAt:     r.ComputedAt,
				WrittenAt:      writtenAt,
			}

			if err := tx.Create(entry).Error; err != nil {
				return fmt.Errorf("appending %s to log: %w", r.Key, err)
			}

			var current Snapshot

			result := tx.
				Where("project = ? AND official_id = ? AND kpi_key = ?",
					project, officialID, r.Key).
				Assign(Snapshot{
					Project:    project,
					OfficialID: officialID,
					KPIKey:     r.Key,
					LogID:      entry.ID,
				}).
				FirstOrCreate(&current)
			if result.Error != nil {
				return fmt.Errorf("upserting snapshot %s: %w", r.Key, result.Error)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("upserting snapshots for %s/%s: %w",
			project, officialID, err)
	}

	s.log.WithFields(logrus.Fields{
		"project": project,
		"release": officialID,
		"records": len(records),
	}).Debug("Upserted snapshots")

	return nil
}

// Last returns the latest log entry of key for the project.
func (s *store) Last(
	ctx context.Context, project, key string,
) (kpi.Record, error) {
	var entries []LogEntry
	if err := s.db.WithContext(ctx).
		Where("project = ? AND kpi_key = ?", project, key).
		Order("id DESC").
		Limit(1).
		Find(&entries).Error; err != nil {
		return kpi.Record{}, fmt.Errorf("querying last %s: %w", key, err)
	}

	if len(entries) == 0 {
		return kpi.Record{}, ErrNotFound
	}

	return entries[0].Record(), nil
}

// Trend returns every log entry of key for the project in write order.
func (s *store) Trend(
	ctx context.Context, project, key string,
) ([]kpi.Record, error) {
	var entries []LogEntry
	if err := s.db.WithContext(ctx).
		Where("project = ? AND kpi_key = ?", project, key).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("querying trend %s: %w", key, err)
	}

	records := make([]kpi.Record, 0, len(entries))
	for i := range entries {
		records = append(records, entries[i].Record())
	}

	return records, nil
}

// Panel resolves the current snapshots of keys through the log and lays
// them out release-major in keys order.
func (s *store) Panel(
	ctx context.Context, project string, keys []string, maxReleases int,
) ([]kpi.Record, error) {
	keys = uniqueKeys(keys)
	if len(keys) == 0 {
		return nil, nil
	}

	current := s.db.WithContext(ctx).
		Model(&Snapshot{}).
		Select("log_id").
		Where("project = ? AND kpi_key IN ?", project, keys)

	var entries []LogEntry
	if err := s.db.WithContext(ctx).
		Where("id IN (?)", current).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("querying panel: %w", err)
	}

	byRelease := make(map[string]map[string]*LogEntry, len(entries))
	releases := make([]string, 0)

	for i := range entries {
		e := &entries[i]

		perKey, ok := byRelease[e.OfficialID]
		if !ok {
			perKey = make(map[string]*LogEntry, len(keys))
			byRelease[e.OfficialID] = perKey
			releases = append(releases, e.OfficialID)
		}

		if prev, ok := perKey[e.KPIKey]; !ok || e.ID > prev.ID {
			perKey[e.KPIKey] = e
		}
	}

	release.SortDescending(releases, s.cmp)

	if maxReleases > 0 && len(releases) > maxReleases {
		releases = releases[:maxReleases]
	}

	records := make([]kpi.Record, 0, len(releases)*len(keys))

	for _, id := range releases {
		for _, key := range keys {
			if e, ok := byRelease[id][key]; ok {
				records = append(records, e.Record())
			}
		}
	}

	return records, nil
}

// uniqueKeys drops blank and repeated keys, keeping first-seen order.
func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))

	for _, k := range keys {
		if k == "" {
			continue
		}

		if _, ok := seen[k]; ok {
			continue
		}

		seen[k] = struct{}{}
		out = append(out, k)
	}

	return out
}

// Releases lists the releases with at least one current snapshot.
func (s *store) Releases(
	ctx context.Context, project string,
) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&Snapshot{}).
		Where("project = ?", project).
		Distinct().
		Pluck("official_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing releases: %w", err)
	}

	release.SortDescending(ids, s.cmp)

	return ids, nil
}
