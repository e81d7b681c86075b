package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/internal/program"
	"github.com/exec-trace/internal/serial"
	"github.com/exec-trace/internal/testutil"
	apperrors "github.com/exec-trace/pkg/errors"
)

const (
	mMain event.MethodID = iota
	mFoo
)

type cliTrace struct {
	dir                       string
	local, call, fooStart     event.ID
	fooStore, fooExit, finish event.ID
}

// newCLITrace records main() { x = 3; foo(2) } with foo(a) { b = a }.
func newCLITrace(t *testing.T) *cliTrace {
	f := testutil.NewFixture(t)
	f.Method(program.Method{ID: mMain, Class: 0, Name: "main", Signature: "main()V", Static: true, Main: true})
	f.Method(program.Method{ID: mFoo, Class: 1, Name: "foo", Signature: "foo(I)V", Static: true, ParamSlots: []int{0}})

	r := event.MustInstructionRef
	add := func(inst program.Instruction) { f.Instruction(inst) }
	add(program.Instruction{Ref: r(0, 0), Method: mMain, Kind: event.KindStart})
	add(program.Instruction{Ref: r(0, 1), Method: mMain, Op: program.OpConstant, Constant: event.Int(3)})
	add(program.Instruction{Ref: r(0, 2), Method: mMain, Kind: event.KindSetLocal, ArgCount: 1,
		Producers: [][]event.InstructionRef{{r(0, 1)}}, Local: 1})
	add(program.Instruction{Ref: r(0, 3), Method: mMain, Op: program.OpConstant, Constant: event.Int(2)})
	add(program.Instruction{Ref: r(0, 4), Method: mMain, Kind: event.KindInvokeStatic, ArgCount: 1,
		Producers: [][]event.InstructionRef{{r(0, 3)}}, Target: mFoo})
	add(program.Instruction{Ref: r(0, 5), Method: mMain, Kind: event.KindReturn})
	add(program.Instruction{Ref: r(1, 0), Method: mFoo, Kind: event.KindStart})
	add(program.Instruction{Ref: r(1, 1), Method: mFoo, Op: program.OpLoadLocal, Local: 0})
	add(program.Instruction{Ref: r(1, 2), Method: mFoo, Kind: event.KindSetLocal, ArgCount: 1,
		Producers: [][]event.InstructionRef{{r(1, 1)}}, Local: 1})
	add(program.Instruction{Ref: r(1, 3), Method: mFoo, Kind: event.KindReturn})

	main := f.Thread("main", event.NullObject)
	ct := &cliTrace{}
	f.Event(main, event.KindStart, r(0, 0))
	ct.local = f.Add(main, serial.Record{Kind: event.KindSetLocal, Ref: r(0, 2), Value: event.Int(3)})
	ct.call = f.Event(main, event.KindInvokeStatic, r(0, 4))
	ct.fooStart = f.Event(main, event.KindStart, r(1, 0))
	ct.fooStore = f.Add(main, serial.Record{Kind: event.KindSetLocal, Ref: r(1, 2), Value: event.Int(2)})
	ct.fooExit = f.Event(main, event.KindReturn, r(1, 3))
	ct.finish = f.Event(main, event.KindReturn, r(0, 5))

	ct.dir = f.Write()
	f.WriteProgram()
	return ct
}

func resetFlags() {
	cfgFile, programFile = "", ""
	verbose = false
	registerAfterLoad, registerName = false, ""
	saveName, saveRegister = "", false
	resolveHeap, resolveChain = false, 1
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, catalogEnabled bool) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tracecli.yaml")
	content := fmt.Sprintf(`engine:
  events_per_block: 4
  max_resident_blocks: 2
storage:
  compression: gzip
catalog:
  enabled: %v
  type: sqlite
  path: %s
log:
  level: error
`, catalogEnabled, filepath.Join(dir, "catalog.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version "+Version)
	assert.Contains(t, out, "Go Version")
}

func TestLoadAndQueryCommands(t *testing.T) {
	ct := newCLITrace(t)
	cfg := writeConfig(t, false)

	t.Run("Load", func(t *testing.T) {
		out, err := execute(t, "--config", cfg, "load", ct.dir)
		require.NoError(t, err)
		assert.Contains(t, out, "Events:    7")
		assert.Contains(t, out, "[0] main")
	})

	t.Run("Event", func(t *testing.T) {
		out, err := execute(t, "--config", cfg, "event", ct.dir, fmt.Sprint(ct.local))
		require.NoError(t, err)
		assert.Contains(t, out, "setlocal at 0:2 thread main value 3")
	})

	t.Run("ResolveThroughParameter", func(t *testing.T) {
		out, err := execute(t, "--config", cfg, "resolve", ct.dir, fmt.Sprint(ct.fooStore), "0")
		require.NoError(t, err)
		assert.Contains(t, out, "constant 2 at 0:3")
	})

	t.Run("Stack", func(t *testing.T) {
		out, err := execute(t, "--config", cfg, "stack", ct.dir, fmt.Sprint(ct.fooStore))
		require.NoError(t, err)
		assert.Contains(t, out, "#0   foo")
		assert.Contains(t, out, fmt.Sprintf("invoked at %d", ct.call))
		assert.Contains(t, out, "#1   main")
	})

	t.Run("Control", func(t *testing.T) {
		out, err := execute(t, "--config", cfg, "control", ct.dir, fmt.Sprint(ct.fooStore))
		require.NoError(t, err)
		assert.Contains(t, out, fmt.Sprintf("%d invokestatic", ct.call))
	})

	t.Run("InvalidEventID", func(t *testing.T) {
		_, err := execute(t, "--config", cfg, "event", ct.dir, "abc")
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
	})

	t.Run("UnknownTraceWithoutCatalog", func(t *testing.T) {
		_, err := execute(t, "--config", cfg, "load", "no-such-trace")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("CatalogDisabled", func(t *testing.T) {
		_, err := execute(t, "--config", cfg, "catalog", "list")
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeConfigError, apperrors.GetErrorCode(err))
	})
}

func TestCatalogWorkflow(t *testing.T) {
	ct := newCLITrace(t)
	cfg := writeConfig(t, true)

	out, err := execute(t, "--config", cfg, "load", ct.dir, "--register", "--name", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered as demo")

	out, err = execute(t, "--config", cfg, "catalog", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "demo")

	// the catalog name stands in for the directory
	out, err = execute(t, "--config", cfg, "resolve", "demo", fmt.Sprint(ct.local), "0")
	require.NoError(t, err)
	assert.Contains(t, out, "constant 3 at 0:1")

	dest := filepath.Join(t.TempDir(), "archived")
	out, err = execute(t, "--config", cfg, "save", "demo", dest, "--name", "archived", "--register")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved archived (7 events)")
	assert.True(t, testutil.FileExists(t, filepath.Join(dest, "program.json")))

	out, err = execute(t, "--config", cfg, "stack", "archived", fmt.Sprint(ct.fooStore))
	require.NoError(t, err)
	assert.Contains(t, out, "foo")

	_, err = execute(t, "--config", cfg, "catalog", "remove", "demo")
	require.NoError(t, err)

	out, err = execute(t, "--config", cfg, "catalog", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "demo")
	assert.Contains(t, out, "archived")

	_, err = execute(t, "--config", cfg, "catalog", "remove", "demo")
	assert.True(t, apperrors.IsNotFound(err))
}
