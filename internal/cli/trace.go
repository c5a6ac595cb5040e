package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/crossroads/internal/ir"
	"github.com/roach88/crossroads/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Dispatch string // optional - show one dispatch with its messages
	Path     string
	Member   string
	Outcome  string
	After    int64
	Limit    int
}

// DispatchTrace is one dispatch with the messages it sent.
type DispatchTrace struct {
	Dispatch ir.Dispatch        `json:"dispatch"`
	Messages []ir.MessageRecord `json:"messages"`
}

// TraceResult holds the trace output.
type TraceResult struct {
	Dispatches []DispatchTrace `json:"dispatches"`
	Stats      TraceStats      `json:"stats"`
}

// TraceStats counts dispatches by outcome.
type TraceStats struct {
	Dispatches int                `json:"dispatches"`
	Messages   int                `json:"messages"`
	Outcomes   map[ir.Outcome]int `json:"outcomes"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show journaled dispatches",
		Long: `Read the dispatch journal written by serve or call --db.

Lists dispatches in seq order with every message each one sent. Use
--dispatch to show a single dispatch.

Examples:
  crossroads trace --db ./calc.db
  crossroads trace --db ./calc.db --member Add --limit 20
  crossroads trace --db ./calc.db --outcome error_reply --after 100
  crossroads trace --db ./calc.db --dispatch 0199c3e4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Dispatch, "dispatch", "", "dispatch id to show")
	cmd.Flags().StringVar(&opts.Path, "path", "", "only dispatches to this object path")
	cmd.Flags().StringVar(&opts.Member, "member", "", "only dispatches of this member")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "", "only dispatches with this outcome")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only dispatches with a greater seq")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum dispatches to read (0 for all)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	// Open creates missing databases; trace only reads existing ones.
	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error("E_DB", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	st, err := journal.Open(opts.Database)
	if err != nil {
		_ = formatter.Error("E_DB", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var dispatches []ir.Dispatch
	if opts.Dispatch != "" {
		d, err := st.ReadDispatch(ctx, opts.Dispatch)
		if errors.Is(err, journal.ErrUnknownDispatch) {
			_ = formatter.Error("E_NOT_FOUND", fmt.Sprintf("no dispatch %s", opts.Dispatch), nil)
			return NewExitError(ExitFailure, fmt.Sprintf("no dispatch %s", opts.Dispatch))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read dispatch", err)
		}
		dispatches = []ir.Dispatch{d}
	} else {
		if opts.Outcome != "" && !ir.ValidOutcomes[ir.Outcome(opts.Outcome)] {
			_ = formatter.Error("E_ARGS", fmt.Sprintf("unknown outcome %q", opts.Outcome), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown outcome %q", opts.Outcome))
		}
		dispatches, err = st.QueryDispatches(ctx, journal.Filter{
			Path:     opts.Path,
			Member:   opts.Member,
			Outcome:  ir.Outcome(opts.Outcome),
			AfterSeq: opts.After,
			Limit:    opts.Limit,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list dispatches", err)
		}
	}

	result := TraceResult{
		Dispatches: []DispatchTrace{},
		Stats:      TraceStats{Outcomes: map[ir.Outcome]int{}},
	}
	for _, d := range dispatches {
		msgs, err := st.ReadMessages(ctx, d.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read messages", err)
		}
		result.Dispatches = append(result.Dispatches, DispatchTrace{Dispatch: d, Messages: msgs})
		result.Stats.Dispatches++
		result.Stats.Messages += len(msgs)
		result.Stats.Outcomes[d.Outcome]++
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	outputTraceText(formatter, result)
	return nil
}

func outputTraceText(f *OutputFormatter, result TraceResult) {
	if len(result.Dispatches) == 0 {
		f.Textf("No dispatches found.")
		return
	}
	for _, dt := range result.Dispatches {
		d := dt.Dispatch
		member := d.Member
		if d.Interface != "" {
			member = d.Interface + "." + d.Member
		}
		line := fmt.Sprintf("[%d] %s %s %s %s", d.Seq, d.ID, d.Path, member, formatBody(d.Body))
		if d.ErrorName != "" {
			line += " -> " + string(d.Outcome) + " " + d.ErrorName
		} else {
			line += " -> " + string(d.Outcome)
		}
		f.Textf("%s", line)
		for _, m := range dt.Messages {
			f.Textf("    %d %s", m.Seq, messageSummary(m))
		}
	}
	f.Textf("")
	f.Textf("%d dispatch(es), %d message(s)", result.Stats.Dispatches, result.Stats.Messages)
}

// messageSummary renders one message as "kind name body".
func messageSummary(m ir.MessageRecord) string {
	switch m.Kind {
	case ir.KindError:
		return fmt.Sprintf("%s %s %s", m.Kind, m.ErrorName, formatBody(m.Body))
	case ir.KindSignal:
		return fmt.Sprintf("%s %s.%s %s", m.Kind, m.Interface, m.Member, formatBody(m.Body))
	}
	return fmt.Sprintf("%s %s", m.Kind, formatBody(m.Body))
}
