package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/internal/provenance"
	"github.com/exec-trace/internal/trace"
	apperrors "github.com/exec-trace/pkg/errors"
)

var (
	resolveHeap  bool
	resolveChain int
)

var eventCmd = &cobra.Command{
	Use:   "event <trace> <id>",
	Short: "Describe one event",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTraceEvent(cmd, args, func(tr *trace.Trace, id event.ID) error {
			return printEvent(cmd, tr, id)
		})
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <trace> <id> [arg]",
	Short: "Find the event that produced a value",
	Long: `Resolve where argument arg of an event came from. The answer is a constant,
the producing event, an increment of a producing event, or unknown with a
reason.

With --heap the event must read the heap and the answer is the write it
observed. --chain follows traced answers back through that many steps,
resolving argument 0 of each producing event.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runResolve,
}

var controlCmd = &cobra.Command{
	Use:   "control <trace> <id>",
	Short: "Find the branch or invocation that decided an event executed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTraceEvent(cmd, args, func(tr *trace.Trace, id event.ID) error {
			dep, err := tr.ControlDependency(id)
			if err != nil {
				return err
			}
			if dep == event.None {
				fmt.Fprintln(cmd.OutOrStdout(), "no control dependency")
				return nil
			}
			return printEvent(cmd, tr, dep)
		})
	},
}

var stackCmd = &cobra.Command{
	Use:   "stack <trace> <id>",
	Short: "Print the call stack at an event",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTraceEvent(cmd, args, func(tr *trace.Trace, id event.ID) error {
			frames, err := tr.CallStack(id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, f := range frames {
				name := "<unknown>"
				if f.Method != nil {
					name = f.Method.Name
				}
				caller := "untraced"
				if f.Invocation != event.None {
					caller = strconv.Itoa(int(f.Invocation))
				}
				fmt.Fprintf(out, "#%-3d %-40s start %d, invoked at %s\n", i, name, f.Start, caller)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(eventCmd, resolveCmd, controlCmd, stackCmd)

	resolveCmd.Flags().BoolVar(&resolveHeap, "heap", false, "Resolve the heap write a read observed")
	resolveCmd.Flags().IntVar(&resolveChain, "chain", 1, "Number of steps to follow")
}

func parseEventID(s string) (event.ID, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil || n < 0 {
		return event.None, apperrors.Newf(apperrors.CodeInvalidInput, "invalid event id %q", s)
	}
	return event.ID(n), nil
}

func withTraceEvent(cmd *cobra.Command, args []string, fn func(tr *trace.Trace, id event.ID) error) error {
	id, err := parseEventID(args[1])
	if err != nil {
		return err
	}
	tr, err := openTrace(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer tr.Close()
	return fn(tr, id)
}

func printEvent(cmd *cobra.Command, tr *trace.Trace, id event.ID) error {
	kind, ref, err := tr.Event(id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	th := tr.ThreadOf(id)
	thread := "?"
	if info, ok := tr.Thread(th); ok {
		thread = info.Name
	}
	fmt.Fprintf(out, "%d %s at %s thread %s", id, kind, ref, thread)
	if kind.Info().Fields.Has(event.FieldValue) {
		p, err := tr.Payload(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, " value %s", p)
	}
	if tr.IsIO(id) {
		fmt.Fprint(out, " io")
	}
	fmt.Fprintln(out)
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	arg := 0
	if len(args) == 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 0 {
			return apperrors.Newf(apperrors.CodeInvalidInput, "invalid argument index %q", args[2])
		}
		arg = n
	}
	return withTraceEvent(cmd, args, func(tr *trace.Trace, id event.ID) error {
		var (
			v   provenance.Value
			err error
		)
		if resolveHeap {
			v, err = tr.HeapDependency(id)
		} else {
			v, err = tr.Resolve(id, arg)
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, v)
		for step := 1; step < resolveChain; step++ {
			next := v.Event()
			if next == event.None || next == id {
				break
			}
			id = next
			if v, err = tr.Resolve(id, 0); err != nil {
				return err
			}
			fmt.Fprintln(out, v)
		}
		return nil
	})
}
