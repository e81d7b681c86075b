package trace

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/exec-trace/internal/block"
	"github.com/exec-trace/internal/history"
	"github.com/exec-trace/internal/program"
	"github.com/exec-trace/pkg/collections"
	apperrors "github.com/exec-trace/pkg/errors"
	"github.com/exec-trace/pkg/parallel"
)

// blockCopier is the part of a pager Save needs.
type blockCopier interface {
	CopyTo(dir string, index int) error
	Persisted(index int) bool
	Flush() error
	MarkPersisted(n int)
}

func (t *Trace) pagers() map[block.Kind]blockCopier {
	return map[block.Kind]blockCopier{
		block.KindIDs:    t.ids,
		block.KindValues: t.values,
		block.KindCalls:  t.calls,
	}
}

// Save writes a complete copy of the trace into dir under name. The copy
// opens in random-access mode and does not need the serial logs. An empty
// name keeps the current one.
func (t *Trace) Save(ctx context.Context, dir, name string, listener program.Listener) (err error) {
	if listener == nil {
		listener = program.NopListener{}
	}
	if name == "" {
		name = t.meta.Name
	}
	ctx, span := tracer.Start(ctx, "trace.save", oteltrace.WithAttributes(
		attribute.String("trace.dest", dir),
		attribute.String("trace.name", name),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	same, err := sameDir(dir, t.dir)
	if err != nil {
		return err
	}
	if same {
		t.meta.Name = name
		if err := t.persist(ctx); err != nil {
			return err
		}
		listener.Progress(1)
		return nil
	}

	for kind := range t.pagers() {
		if err := os.MkdirAll(filepath.Join(dir, BlocksDir, string(kind)), 0755); err != nil {
			return apperrors.Wrap(apperrors.CodeBlockIO, "create block directory", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, HistoryDir), 0755); err != nil {
		return apperrors.Wrap(apperrors.CodeBlockIO, "create history directory", err)
	}

	n := t.layout.Count(t.meta.Events)
	components := t.hist.Components()
	total := float64(3*n + len(components) + 1)
	var done atomic.Int64
	p := &progress{l: listener}
	step := func() { p.report(float64(done.Add(1)) / total) }

	listener.Notice("blocks")
	g, gctx := errgroup.WithContext(ctx)
	for kind, pager := range t.pagers() {
		kind, pager := kind, pager
		g.Go(func() error {
			dst := filepath.Join(dir, BlocksDir, string(kind))
			for i := 0; i < n; i++ {
				if err := cancelled(gctx, listener); err != nil {
					return err
				}
				if err := pager.CopyTo(dst, i); err != nil {
					return err
				}
				step()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	listener.Notice("histories")
	if err := t.writeHistories(ctx, dir, step); err != nil {
		return err
	}
	if err := writeBitset(filepath.Join(dir, IOFile), t.io); err != nil {
		return err
	}

	meta := t.persistedMetadata(name)
	for i := range meta.Threads {
		meta.Threads[i].Log = ""
	}
	if err := WriteMetadata(dir, &meta); err != nil {
		return apperrors.Wrap(apperrors.CodeBlockIO, "write metadata", err)
	}
	step()
	t.logger.Info("saved %q to %s: %d blocks per kind", name, dir, n)
	return nil
}

// persist writes blocks, histories and metadata into the trace's own
// directory so the next Open pages them in lazily.
func (t *Trace) persist(ctx context.Context) error {
	n := t.layout.Count(t.meta.Events)
	for kind, pager := range t.pagers() {
		if err := pager.Flush(); err != nil {
			return err
		}
		own := filepath.Join(t.dir, BlocksDir, string(kind))
		for i := 0; i < n; i++ {
			if pager.Persisted(i) {
				continue
			}
			if err := pager.CopyTo(own, i); err != nil {
				return err
			}
		}
		pager.MarkPersisted(n)
	}
	if err := cancelled(ctx, t.opts.Listener); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(t.dir, HistoryDir), 0755); err != nil {
		return apperrors.Wrap(apperrors.CodeBlockIO, "create history directory", err)
	}
	if err := t.writeHistories(ctx, t.dir, func() {}); err != nil {
		return err
	}
	if err := writeBitset(filepath.Join(t.dir, IOFile), t.io); err != nil {
		return err
	}
	meta := t.persistedMetadata(t.meta.Name)
	if err := WriteMetadata(t.dir, &meta); err != nil {
		return apperrors.Wrap(apperrors.CodeBlockIO, "write metadata", err)
	}
	*t.meta = meta
	return nil
}

func (t *Trace) persistedMetadata(name string) Metadata {
	meta := t.Metadata()
	meta.Name = name
	meta.Persisted = true
	meta.EventsPerBlock = t.layout.EventsPerBlock
	meta.Compression = t.comp.Type().String()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = t.opts.Clock.Now()
	}
	return meta
}

func (t *Trace) writeHistories(ctx context.Context, dir string, step func()) error {
	cfg := parallel.DefaultPoolConfig().WithWorkers(t.opts.Workers)
	_, err := parallel.ForEach(ctx, t.hist.Components(), cfg, func(_ context.Context, c history.Named) error {
		if err := writeComponent(filepath.Join(dir, HistoryDir, c.Name), c.Component); err != nil {
			return err
		}
		step()
		return nil
	})
	return err
}

func writeComponent(path string, c history.Component) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeBlockIO, "create history "+filepath.Base(path), err)
	}
	if _, err := c.WriteTo(f); err != nil {
		f.Close()
		return apperrors.Wrap(apperrors.CodeBlockIO, "write history "+filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return apperrors.Wrap(apperrors.CodeBlockIO, "close history "+filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}

func writeBitset(path string, bits *collections.Bitset) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeBlockIO, "create I/O classification", err)
	}
	if _, err := bits.WriteTo(f); err != nil {
		f.Close()
		return apperrors.Wrap(apperrors.CodeBlockIO, "write I/O classification", err)
	}
	return f.Close()
}

func sameDir(a, b string) (bool, error) {
	aa, err := filepath.Abs(a)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeInvalidInput, "resolve "+a, err)
	}
	bb, err := filepath.Abs(b)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeInvalidInput, "resolve "+b, err)
	}
	return aa == bb, nil
}
