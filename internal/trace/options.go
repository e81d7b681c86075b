package trace

import (
	"github.com/exec-trace/internal/block"
	"github.com/exec-trace/internal/program"
	"github.com/exec-trace/pkg/compression"
	"github.com/exec-trace/pkg/config"
	"github.com/exec-trace/pkg/utils"
)

// Options configures Open.
type Options struct {
	EventsPerBlock int
	// MaxResidentBlocks caps resident blocks per kind. Zero derives the
	// cap from MemoryBudget.
	MaxResidentBlocks int
	MemoryBudget      int64
	AnalysisCacheSize int
	// PersistAfterLoad writes blocks and histories next to the logs after
	// a streaming load, so the next Open pages them in lazily.
	PersistAfterLoad bool
	Compression      compression.Type
	CompressionLevel compression.Level
	Workers          int

	Logger   utils.Logger
	Listener program.Listener
	Clock    utils.Clock
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		EventsPerBlock:    block.DefaultEventsPerBlock,
		MemoryBudget:      512 << 20,
		AnalysisCacheSize: 256,
		PersistAfterLoad:  true,
		Compression:       compression.TypeZstd,
		CompressionLevel:  compression.LevelDefault,
		Workers:           4,
	}
}

// FromConfig builds options from the engine and storage configuration.
func FromConfig(cfg *config.Config, logger utils.Logger) (Options, error) {
	ct, err := compression.ParseType(cfg.Storage.Compression)
	if err != nil {
		return Options{}, err
	}
	return Options{
		EventsPerBlock:    cfg.Engine.EventsPerBlock,
		MaxResidentBlocks: cfg.Engine.MaxResidentBlocks,
		MemoryBudget:      cfg.Engine.MemoryBudgetBytes(),
		AnalysisCacheSize: cfg.Engine.AnalysisCacheSize,
		PersistAfterLoad:  cfg.Engine.PersistAfterLoad,
		Compression:       ct,
		CompressionLevel:  compression.Level(cfg.Storage.CompressionLevel),
		Workers:           cfg.Engine.Workers,
		Logger:            logger,
	}, nil
}

func (o *Options) normalize() {
	d := DefaultOptions()
	if o.EventsPerBlock <= 0 {
		o.EventsPerBlock = d.EventsPerBlock
	}
	if o.MemoryBudget <= 0 {
		o.MemoryBudget = d.MemoryBudget
	}
	if o.AnalysisCacheSize <= 0 {
		o.AnalysisCacheSize = d.AnalysisCacheSize
	}
	if o.CompressionLevel == 0 {
		o.CompressionLevel = d.CompressionLevel
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.Logger == nil {
		o.Logger = &utils.NullLogger{}
	}
	if o.Listener == nil {
		o.Listener = program.NopListener{}
	}
	if o.Clock == nil {
		o.Clock = utils.RealClock{}
	}
}

func (o *Options) residentCap() int {
	if o.MaxResidentBlocks > 0 {
		if o.MaxResidentBlocks < block.MinResident {
			return block.MinResident
		}
		return o.MaxResidentBlocks
	}
	return block.CapFor(o.MemoryBudget, o.EventsPerBlock)
}
