// Package catalog keeps a database registry of saved traces, so a trace
// can be reopened by name.
package catalog

import (
	"time"

	"github.com/exec-trace/internal/trace"
)

// TraceRecord represents the trace_catalog table.
type TraceRecord struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name        string    `gorm:"column:name;type:varchar(128);uniqueIndex"`
	Dir         string    `gorm:"column:dir;type:varchar(1024)"`
	Events      int64     `gorm:"column:events"`
	Threads     int       `gorm:"column:threads"`
	Objects     int64     `gorm:"column:objects"`
	Classes     int       `gorm:"column:classes"`
	Compression string    `gorm:"column:compression;type:varchar(16)"`
	Persisted   bool      `gorm:"column:persisted"`
	RecordedAt  time.Time `gorm:"column:recorded_at"`
	CreateTime  time.Time `gorm:"column:create_time;autoCreateTime"`
	UpdateTime  time.Time `gorm:"column:update_time;autoUpdateTime"`
}

// TableName returns the table name for TraceRecord.
func (TraceRecord) TableName() string {
	return "trace_catalog"
}

// Entry is a registered trace.
type Entry struct {
	Name        string
	Dir         string
	Events      int64
	Threads     int
	Objects     int64
	Classes     int
	Compression string
	Persisted   bool
	RecordedAt  time.Time
	Registered  time.Time
}

// EntryFromMetadata describes the trace stored in dir.
func EntryFromMetadata(name, dir string, m trace.Metadata) *Entry {
	if name == "" {
		name = m.Name
	}
	return &Entry{
		Name:        name,
		Dir:         dir,
		Events:      int64(m.Events),
		Threads:     len(m.Threads),
		Objects:     int64(m.Objects),
		Classes:     m.Classes,
		Compression: m.Compression,
		Persisted:   m.Persisted,
		RecordedAt:  m.CreatedAt,
	}
}

// ToEntry converts TraceRecord to Entry.
func (r *TraceRecord) ToEntry() *Entry {
	return &Entry{
		Name:        r.Name,
		Dir:         r.Dir,
		Events:      r.Events,
		Threads:     r.Threads,
		Objects:     r.Objects,
		Classes:     r.Classes,
		Compression: r.Compression,
		Persisted:   r.Persisted,
		RecordedAt:  r.RecordedAt,
		Registered:  r.CreateTime,
	}
}

// FromEntry converts Entry to TraceRecord.
func FromEntry(e *Entry) *TraceRecord {
	return &TraceRecord{
		Name:        e.Name,
		Dir:         e.Dir,
		Events:      e.Events,
		Threads:     e.Threads,
		Objects:     e.Objects,
		Classes:     e.Classes,
		Compression: e.Compression,
		Persisted:   e.Persisted,
		RecordedAt:  e.RecordedAt,
	}
}
