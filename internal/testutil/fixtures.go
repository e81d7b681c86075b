// Package testutil builds trace directories for tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/internal/program"
	"github.com/exec-trace/internal/serial"
	"github.com/exec-trace/internal/trace"
)

// FixtureTime is the creation time stamped into fixture metadata.
var FixtureTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// TempDir creates a temporary directory removed when the test completes.
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "exec-trace-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

// FileExists checks if a file exists.
func FileExists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	return err == nil
}

type entry struct {
	rec  serial.Record
	pool *serial.PoolEntry
}

type fixtureThread struct {
	name    string
	object  event.ObjectID
	entries []entry
}

// Fixture accumulates a static program and per-thread event records, then
// writes them as a trace directory.
type Fixture struct {
	t       *testing.T
	Dir     string
	Program *program.Memory

	threads []*fixtureThread
	next    event.ID
	written bool
}

// NewFixture creates an empty fixture in a fresh temp dir.
func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	return &Fixture{t: t, Dir: TempDir(t), Program: program.NewMemory()}
}

// Method registers a method.
func (f *Fixture) Method(m program.Method) *program.Method {
	return f.Program.AddMethod(m)
}

// Instruction registers an instruction.
func (f *Fixture) Instruction(inst program.Instruction) *program.Instruction {
	f.t.Helper()
	stored, err := f.Program.AddInstruction(inst)
	require.NoError(f.t, err)
	return stored
}

// Thread adds a thread and returns its index.
func (f *Fixture) Thread(name string, object event.ObjectID) int {
	f.threads = append(f.threads, &fixtureThread{name: name, object: object})
	return len(f.threads) - 1
}

// Add appends rec to thread with the next event ID and returns that ID.
func (f *Fixture) Add(thread int, rec serial.Record) event.ID {
	f.t.Helper()
	require.Less(f.t, thread, len(f.threads), "unknown thread %d", thread)
	rec.ID = f.next
	f.next++
	th := f.threads[thread]
	th.entries = append(th.entries, entry{rec: rec})
	return rec.ID
}

// Event appends an event with only a kind and an instruction.
func (f *Fixture) Event(thread int, kind event.Kind, ref event.InstructionRef) event.ID {
	return f.Add(thread, serial.Record{Kind: kind, Ref: ref})
}

// Skip leaves n IDs unused.
func (f *Fixture) Skip(n int) {
	f.next += event.ID(n)
}

// Next returns the ID the next Add will use.
func (f *Fixture) Next() event.ID {
	return f.next
}

// Pool binds an immutable value to obj in thread's log.
func (f *Fixture) Pool(thread int, obj event.ObjectID, typ, text string) {
	th := f.threads[thread]
	th.entries = append(th.entries, entry{pool: &serial.PoolEntry{Object: obj, Type: typ, Text: text}})
}

// Write writes the logs and metadata and returns the trace directory.
func (f *Fixture) Write() string {
	f.t.Helper()
	if f.written {
		return f.Dir
	}
	meta := &trace.Metadata{
		Version:   trace.MetadataVersion,
		Name:      filepath.Base(f.Dir),
		Events:    int(f.next),
		Classes:   f.Program.ClassCount(),
		CreatedAt: FixtureTime,
	}
	for i, th := range f.threads {
		log := fmt.Sprintf("thread-%d.log", i)
		w, err := serial.CreateFile(filepath.Join(f.Dir, log))
		require.NoError(f.t, err)
		for _, e := range th.entries {
			if e.pool != nil {
				require.NoError(f.t, w.WritePool(*e.pool))
				continue
			}
			require.NoError(f.t, w.Write(e.rec))
		}
		require.NoError(f.t, w.Close())
		meta.Threads = append(meta.Threads, trace.ThreadInfo{
			Name:   th.name,
			Object: th.object,
			Log:    log,
			First:  event.None,
			Last:   event.None,
		})
	}
	require.NoError(f.t, trace.WriteMetadata(f.Dir, meta))
	f.written = true
	return f.Dir
}

// WriteProgram writes the program model next to the logs.
func (f *Fixture) WriteProgram() string {
	f.t.Helper()
	path := filepath.Join(f.Dir, trace.ProgramFile)
	out, err := os.Create(path)
	require.NoError(f.t, err)
	defer out.Close()
	require.NoError(f.t, f.Program.WriteJSON(out))
	return path
}

// Open writes the fixture if needed and loads it.
func (f *Fixture) Open(opts trace.Options) *trace.Trace {
	f.t.Helper()
	tr, err := trace.Open(context.Background(), f.Write(), f.Program, opts)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { tr.Close() })
	return tr
}

// SmallBlocks returns options with tiny blocks and a two-block resident
// cap, so a short fixture exercises eviction and reloading.
func SmallBlocks() trace.Options {
	opts := trace.DefaultOptions()
	opts.EventsPerBlock = 4
	opts.MaxResidentBlocks = 2
	return opts
}
