package trace

import (
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/exec-trace/internal/event"
	apperrors "github.com/exec-trace/pkg/errors"
)

// MetadataVersion is the current metadata format.
const MetadataVersion = 1

// On-disk layout of a trace directory.
const (
	MetadataFile = "metadata.json"
	BlocksDir    = "blocks"
	HistoryDir   = "history"
	IOFile       = "io.bits"
	// ProgramFile holds the static program model, when the recorder
	// exported one next to the logs.
	ProgramFile = "program.json"
)

// ThreadInfo describes one recorded thread.
type ThreadInfo struct {
	Name string `json:"name"`
	// Object is the thread's own object, when the recorder knew it.
	Object event.ObjectID `json:"object,omitempty"`
	// Log is the serial log file, relative to the trace directory.
	Log   string   `json:"log,omitempty"`
	First event.ID `json:"first"`
	Last  event.ID `json:"last"`
}

// Metadata is the trace directory's index file.
type Metadata struct {
	Version int    `json:"version"`
	Name    string `json:"name,omitempty"`

	Events  int `json:"events"`
	Objects int `json:"objects"`
	Classes int `json:"classes"`

	EventsPerBlock int    `json:"eventsPerBlock,omitempty"`
	Compression    string `json:"compression,omitempty"`
	// Persisted is set once blocks and histories were written; such a
	// trace opens in random-access mode.
	Persisted bool `json:"persisted"`

	Threads   []ThreadInfo `json:"threads"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Validate checks the fields Open depends on.
func (m *Metadata) Validate() error {
	if m.Version != MetadataVersion {
		return apperrors.Newf(apperrors.CodeLoadFailure, "unsupported metadata version %d", m.Version)
	}
	if m.Events < 0 || m.Objects < 0 || m.Classes < 0 {
		return apperrors.New(apperrors.CodeLoadFailure, "negative count in metadata")
	}
	if m.Persisted && m.EventsPerBlock <= 0 {
		return apperrors.New(apperrors.CodeLoadFailure, "persisted trace without events per block")
	}
	for i, th := range m.Threads {
		if !m.Persisted && th.Log == "" {
			return apperrors.Newf(apperrors.CodeLoadFailure, "thread %d (%s) has no log", i, th.Name)
		}
	}
	return nil
}

// ReadMetadata reads and validates dir's metadata.
func ReadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeLoadFailure, "read metadata", err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeLoadFailure, "parse metadata", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// WriteMetadata writes m into dir atomically.
func WriteMetadata(dir string, m *Metadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, MetadataFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, MetadataFile))
}
