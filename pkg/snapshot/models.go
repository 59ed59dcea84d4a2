package snapshot

import (
	"time"

	"github.com/ethpandaops/releasekpi/pkg/kpi"
)

// LogEntry is one write of a KPI value. Entries are never updated or
// deleted; the auto-increment ID orders writes.
type LogEntry struct {
	ID             uint   `gorm:"primaryKey"`
	Project        string `gorm:"not null;index:idx_log_project_key"`
	OfficialID     string `gorm:"not null;index"`
	KPIKey         string `gorm:"column:kpi_key;not null;index:idx_log_project_key"`
	Name           string
	Value          float64
	FormattedValue string
	TrendSymbol    string
	Description    string
	Percent        bool
	ComputedAt     time.Time
	WrittenAt      time.Time
}

// TableName overrides the gorm default.
func (LogEntry) TableName() string { return "kpi_snapshot_log" }

// Record converts the entry back into a KPI record.
func (e *LogEntry) Record() kpi.Record {
	return kpi.Record{
		Key:            e.KPIKey,
		Name:           e.Name,
		Value:          e.Value,
		FormattedValue: e.FormattedValue,
		TrendSymbol:    e.TrendSymbol,
		Description:    e.Description,
		Percent:        e.Percent,
		Project:        e.Project,
		Release:        e.OfficialID,
		ComputedAt:     e.ComputedAt,
	}
}

// Snapshot is the current view: one row per (project, official id, key)
// pointing at the latest log entry written for it.
type Snapshot struct {
	ID         uint   `gorm:"primaryKey"`
	Project    string `gorm:"not null;uniqueIndex:idx_snapshots_key"`
	OfficialID string `gorm:"not null;uniqueIndex:idx_snapshots_key"`
	KPIKey     string `gorm:"column:kpi_key;not null;uniqueIndex:idx_snapshots_key"`
	LogID      uint   `gorm:"not null;index"`
	UpdatedAt  time.Time
}

// TableName overrides the gorm default.
func (Snapshot) TableName() string { return "kpi_snapshots" }
