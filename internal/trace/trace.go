// Package trace is the query facade over one recorded execution. Open
// loads a trace directory, either by streaming its per-thread serial logs
// into blocks and histories or, for a directory written by an earlier
// load, by paging persisted blocks in on demand.
//
// After Open returns the trace is read-only and safe for concurrent
// queries.
package trace

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/exec-trace/internal/block"
	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/internal/history"
	"github.com/exec-trace/internal/program"
	"github.com/exec-trace/internal/provenance"
	"github.com/exec-trace/pkg/collections"
	"github.com/exec-trace/pkg/compression"
	apperrors "github.com/exec-trace/pkg/errors"
	"github.com/exec-trace/pkg/utils"
)

// Trace is a loaded execution trace.
type Trace struct {
	dir    string
	meta   *Metadata
	opts   Options
	layout block.Layout
	prog   *program.Cache
	comp   compression.Compressor
	logger utils.Logger
	timer  *utils.Timer

	ids    *block.Pager[*block.IDBlock]
	values *block.Pager[*block.ValueBlock]
	calls  *block.Pager[*block.CallBlock]

	hist     *history.Set
	io       *collections.Bitset
	resolver *provenance.Resolver

	closeOnce sync.Once
}

// Open loads the trace in dir against the static program model prog.
func Open(ctx context.Context, dir string, prog program.Program, opts Options) (*Trace, error) {
	opts.normalize()
	meta, err := ReadMetadata(dir)
	if err != nil {
		return nil, err
	}
	if meta.Persisted {
		opts.EventsPerBlock = meta.EventsPerBlock
	}

	cache, err := program.NewCache(prog, opts.AnalysisCacheSize)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "create analysis cache", err)
	}
	comp, err := compression.New(opts.Compression, opts.CompressionLevel)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "create compressor", err)
	}

	logger := opts.Logger.WithField("trace", filepath.Base(dir))
	t := &Trace{
		dir:    dir,
		meta:   meta,
		opts:   opts,
		layout: block.Layout{EventsPerBlock: opts.EventsPerBlock},
		prog:   cache,
		comp:   comp,
		logger: logger,
		timer:  utils.NewTimer("load", utils.WithLogger(logger), utils.WithClock(opts.Clock)),
		hist:   history.NewSet(),
		io:     collections.NewBitset(meta.Events),
	}
	if err := t.openPagers(); err != nil {
		t.Close()
		return nil, err
	}
	t.resolver = provenance.NewResolver(t, cache, logger)

	if err := t.load(ctx); err != nil {
		t.Close()
		return nil, err
	}
	t.timer.PrintSummary()
	return t, nil
}

func (t *Trace) openPagers() error {
	cap := t.opts.residentCap()
	opts := func(kind block.Kind) block.PagerOptions {
		return block.PagerOptions{
			Dir:        filepath.Join(t.dir, BlocksDir, string(kind)),
			Cap:        cap,
			Compressor: t.comp,
			Logger:     t.logger,
		}
	}
	var err error
	if t.ids, err = block.NewPager[*block.IDBlock](block.IDCodec{Layout: t.layout}, opts(block.KindIDs)); err != nil {
		return err
	}
	if t.values, err = block.NewPager[*block.ValueBlock](block.ValueCodec{}, opts(block.KindValues)); err != nil {
		return err
	}
	t.calls, err = block.NewPager[*block.CallBlock](block.CallCodec{}, opts(block.KindCalls))
	return err
}

// Close releases the compressor. Queries after Close are undefined.
func (t *Trace) Close() error {
	t.closeOnce.Do(func() {
		if t.comp != nil {
			compression.Close(t.comp)
		}
	})
	return nil
}

// Dir returns the trace directory.
func (t *Trace) Dir() string {
	return t.dir
}

// Metadata returns a copy of the trace metadata.
func (t *Trace) Metadata() Metadata {
	m := *t.meta
	m.Threads = append([]ThreadInfo(nil), t.meta.Threads...)
	return m
}

// EventCount returns one past the largest event ID.
func (t *Trace) EventCount() int {
	return t.meta.Events
}

// Program returns the cached static program model.
func (t *Trace) Program() *program.Cache {
	return t.prog
}

// Histories returns the history indices.
func (t *Trace) Histories() *history.Set {
	return t.hist
}

// Layout returns the block layout.
func (t *Trace) Layout() block.Layout {
	return t.layout
}

func (t *Trace) checkID(id event.ID) error {
	if id < 0 || int(id) >= t.meta.Events {
		return apperrors.Newf(apperrors.CodeNotFound, "event %d out of range [0, %d)", id, t.meta.Events)
	}
	return nil
}

// Event returns the kind and instruction of id.
func (t *Trace) Event(id event.ID) (event.Kind, event.InstructionRef, error) {
	if err := t.checkID(id); err != nil {
		return 0, event.InstructionRef{}, err
	}
	b, err := t.ids.Get(t.layout.Block(id))
	if err != nil {
		return 0, event.InstructionRef{}, err
	}
	k, ref, ok := b.Get(id)
	if !ok {
		return 0, event.InstructionRef{}, apperrors.Newf(apperrors.CodeNotFound, "no event %d", id)
	}
	return k, ref, nil
}

// Payload returns the value id produced or stored, or the zero Payload.
func (t *Trace) Payload(id event.ID) (event.Payload, error) {
	if err := t.checkID(id); err != nil {
		return event.Payload{}, err
	}
	b, err := t.values.Get(t.layout.Block(id))
	if err != nil {
		return event.Payload{}, err
	}
	p, _ := b.Value(id)
	return p, nil
}

// Operands returns the operand fields of id.
func (t *Trace) Operands(id event.ID) (block.Operands, error) {
	if err := t.checkID(id); err != nil {
		return block.Operands{}, err
	}
	b, err := t.values.Get(t.layout.Block(id))
	if err != nil {
		return block.Operands{}, err
	}
	return b.Operands(id), nil
}

// Correlation returns the event correlated with id in map c, or
// event.None.
func (t *Trace) Correlation(c block.Correlation, id event.ID) (event.ID, error) {
	if err := t.checkID(id); err != nil {
		return event.None, err
	}
	b, err := t.calls.Get(t.layout.Block(id))
	if err != nil {
		return event.None, err
	}
	return b.Get(c, id), nil
}

// ThreadObject returns the object of thread, or event.NullObject.
func (t *Trace) ThreadObject(thread int) event.ObjectID {
	if thread < 0 || thread >= len(t.meta.Threads) {
		return event.NullObject
	}
	return t.meta.Threads[thread].Object
}

// correlate stores a call correlation during ingestion.
func (t *Trace) correlate(c block.Correlation, from, to event.ID) error {
	idx := t.layout.Block(from)
	b, err := t.calls.Get(idx)
	if err != nil {
		return err
	}
	b.Set(c, from, to)
	t.calls.MarkDirty(idx)
	return nil
}
