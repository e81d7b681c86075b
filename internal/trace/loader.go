package trace

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/exec-trace/internal/history"
	"github.com/exec-trace/internal/program"
	"github.com/exec-trace/internal/serial"
	"github.com/exec-trace/pkg/collections"
	apperrors "github.com/exec-trace/pkg/errors"
	"github.com/exec-trace/pkg/parallel"
	"github.com/exec-trace/pkg/telemetry"
)

var tracer = telemetry.Tracer("internal/trace")

// Load phase names, reported to the listener and used as span names.
const (
	PhaseMetadata  = "metadata"
	PhaseClasses   = "classes"
	PhaseEvents    = "events"
	PhaseCallGraph = "call-graph"
	PhaseHistories = "histories"
	PhaseIO        = "io"
	PhasePersist   = "persist"
)

// progress forwards monotonic fractions to a listener.
type progress struct {
	mu   sync.Mutex
	last float64
	l    program.Listener
}

func (p *progress) report(f float64) {
	if f > 1 {
		f = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if f <= p.last {
		return
	}
	p.last = f
	p.l.Progress(f)
}

func (t *Trace) cancelled(ctx context.Context) error {
	return cancelled(ctx, t.opts.Listener)
}

func cancelled(ctx context.Context, l program.Listener) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeCancelled, "operation cancelled", err)
	}
	if l.Cancelled() {
		return apperrors.New(apperrors.CodeCancelled, "operation cancelled by listener")
	}
	return nil
}

// phase runs fn in its own span after checking for cancellation.
func (t *Trace) phase(ctx context.Context, name string, fn func(ctx context.Context, span oteltrace.Span) error) error {
	if err := t.cancelled(ctx); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "trace.load."+name)
	defer span.End()

	t.opts.Listener.Notice(name)
	pt := t.timer.Start(name)
	err := fn(ctx, span)
	pt.Stop()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.logger.Error("phase %s failed: %v", name, err)
	}
	return err
}

func (t *Trace) load(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "trace.load", oteltrace.WithAttributes(
		attribute.String("trace.dir", t.dir),
		attribute.Bool("trace.persisted", t.meta.Persisted),
		attribute.Int("trace.threads", len(t.meta.Threads)),
	))
	defer span.End()

	p := &progress{l: t.opts.Listener}
	var err error
	if t.meta.Persisted {
		err = t.loadPersisted(ctx, p)
	} else {
		err = t.loadStreaming(ctx, p)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	p.report(1)
	return nil
}

func (t *Trace) loadMetadata(ctx context.Context) error {
	return t.phase(ctx, PhaseMetadata, func(_ context.Context, span oteltrace.Span) error {
		span.SetAttributes(attribute.Int("trace.events", t.meta.Events))
		t.logger.Info("trace %q: %d events, %d threads, %d objects",
			t.meta.Name, t.meta.Events, len(t.meta.Threads), t.meta.Objects)
		return nil
	})
}

func (t *Trace) checkClasses(ctx context.Context) error {
	return t.phase(ctx, PhaseClasses, func(_ context.Context, span oteltrace.Span) error {
		have := t.prog.Program().ClassCount()
		span.SetAttributes(attribute.Int("trace.classes", have))
		if t.meta.Classes > have {
			return apperrors.Newf(apperrors.CodeLoadFailure,
				"trace references %d classes, program model has %d", t.meta.Classes, have)
		}
		return nil
	})
}

func (t *Trace) loadStreaming(ctx context.Context, p *progress) error {
	if err := t.loadMetadata(ctx); err != nil {
		return err
	}
	if err := t.checkClasses(ctx); err != nil {
		return err
	}
	p.report(0.02)

	err := t.phase(ctx, PhaseEvents, func(ctx context.Context, span oteltrace.Span) error {
		n, err := t.ingestLogs(ctx, p)
		span.SetAttributes(attribute.Int("trace.ingested", n))
		return err
	})
	if err != nil {
		return err
	}

	err = t.phase(ctx, PhaseCallGraph, func(_ context.Context, span oteltrace.Span) error {
		sites, observed := t.hist.CallTargets.Sites(), t.hist.CallTargets.ObservedSites()
		span.SetAttributes(attribute.Int("trace.call_sites", sites), attribute.Int("trace.observed_call_sites", observed))
		t.logger.Debug("call graph: %d sites, %d with observed targets", sites, observed)
		return nil
	})
	if err != nil {
		return err
	}

	err = t.phase(ctx, PhaseIO, func(_ context.Context, span oteltrace.Span) error {
		n := t.io.Count()
		span.SetAttributes(attribute.Int("trace.io_events", n))
		t.logger.Debug("%d I/O events", n)
		return nil
	})
	if err != nil {
		return err
	}
	p.report(0.9)

	if !t.opts.PersistAfterLoad {
		return nil
	}
	return t.phase(ctx, PhasePersist, func(ctx context.Context, _ oteltrace.Span) error {
		return t.persist(ctx)
	})
}

func (t *Trace) ingestLogs(ctx context.Context, p *progress) (int, error) {
	files := make([]*serial.File, 0, len(t.meta.Threads))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	sources := make([]serial.RecordSource, 0, len(t.meta.Threads))
	for i, th := range t.meta.Threads {
		f, err := serial.OpenFile(filepath.Join(t.dir, th.Log))
		if err != nil {
			return 0, apperrors.Wrap(apperrors.CodeLoadFailure, "open log of thread "+th.Name, err)
		}
		files = append(files, f)
		sources = append(sources, f)
		t.logger.Debug("thread %d (%s): %d bytes", i, th.Name, f.Size())
	}
	merger, err := serial.NewMerger(sources)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeLoadFailure, "read logs", err)
	}
	in := newIngester(t, p)
	return in.run(ctx, merger)
}

func (t *Trace) loadPersisted(ctx context.Context, p *progress) error {
	if err := t.loadMetadata(ctx); err != nil {
		return err
	}
	if err := t.checkClasses(ctx); err != nil {
		return err
	}
	n := t.layout.Count(t.meta.Events)
	t.ids.MarkPersisted(n)
	t.values.MarkPersisted(n)
	t.calls.MarkPersisted(n)
	p.report(0.1)

	err := t.phase(ctx, PhaseHistories, func(ctx context.Context, span oteltrace.Span) error {
		components := t.hist.Components()
		span.SetAttributes(attribute.Int("trace.histories", len(components)))
		var loaded atomic.Int64
		cfg := parallel.DefaultPoolConfig().WithWorkers(t.opts.Workers)
		_, err := parallel.ForEach(ctx, components, cfg, func(_ context.Context, c history.Named) error {
			if err := readComponent(filepath.Join(t.dir, HistoryDir, c.Name), c.Component); err != nil {
				return err
			}
			p.report(0.1 + 0.8*float64(loaded.Add(1))/float64(len(components)))
			return nil
		})
		return err
	})
	if err != nil {
		return err
	}

	return t.phase(ctx, PhaseIO, func(_ context.Context, span oteltrace.Span) error {
		bits, err := readBitset(filepath.Join(t.dir, IOFile))
		if err != nil {
			return err
		}
		t.io = bits
		span.SetAttributes(attribute.Int("trace.io_events", bits.Count()))
		return nil
	})
}

func readComponent(path string, c history.Component) error {
	f, err := os.Open(path)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeLoadFailure, "open history "+filepath.Base(path), err)
	}
	defer f.Close()
	if _, err := c.ReadFrom(bufio.NewReader(f)); err != nil {
		return apperrors.Wrap(apperrors.CodeLoadFailure, "read history "+filepath.Base(path), err)
	}
	return nil
}

func readBitset(path string) (*collections.Bitset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeLoadFailure, "open I/O classification", err)
	}
	defer f.Close()
	bits, err := collections.ReadBitset(bufio.NewReader(f))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeLoadFailure, "read I/O classification", err)
	}
	return bits, nil
}
