package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/roach88/crossroads/internal/ir"
	"github.com/roach88/crossroads/internal/journal"
	"github.com/roach88/crossroads/internal/loop"
	"github.com/roach88/crossroads/internal/service"
	"github.com/roach88/crossroads/internal/testutil"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	Specs     []string
	Interface string
	Signature string
	NoReply   bool
	DB        string
}

// CallResult is what one call produced.
type CallResult struct {
	DispatchID string             `json:"dispatch_id"`
	Seq        int64              `json:"seq"`
	Outcome    ir.Outcome         `json:"outcome"`
	ErrorName  string             `json:"error_name,omitempty"`
	Messages   []ir.MessageRecord `json:"messages"`
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <path> <method> [args-json]",
		Short: "Dispatch one method call without a bus",
		Long: `Build a method call, dispatch it to the objects declared by the
manifests and print every message the call produced.

Arguments are a JSON array converted with the method's declared input
signature, or with --signature. Variants take {"sig": ..., "value": ...}.

Exit codes:
  0 - Call succeeded
  1 - Call produced an error reply, or the manifest is invalid
  2 - Command error (bad arguments, unreadable database)

Examples:
  crossroads call --spec ./calc /com/example/calc Add '[40, 2]'
  crossroads call --spec ./calc /com/example/calc Get '["com.example.Calc", "Model"]' \
      --interface org.freedesktop.DBus.Properties
  crossroads call --spec ./calc --db calc.db /com/example/calc Notify '["hi"]'`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(opts, args, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Specs, "spec", nil, "manifest file or directory (repeatable)")
	cmd.Flags().StringVarP(&opts.Interface, "interface", "i", "", "interface of the method")
	cmd.Flags().StringVar(&opts.Signature, "signature", "", "input signature overriding the declared one")
	cmd.Flags().BoolVar(&opts.NoReply, "no-reply", false, "set the no-reply-expected flag")
	cmd.Flags().StringVar(&opts.DB, "db", "", "journal the dispatch to this database")
	_ = cmd.MarkFlagRequired("spec")

	return cmd
}

func runCall(opts *CallOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	callArgs, err := parseArgs(args[2:])
	if err != nil {
		_ = formatter.Error("E_ARGS", err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}

	svc, err := loadService(formatter, opts.Specs, slog.Default())
	if err != nil {
		return err
	}

	msg, err := svc.BuildCall(service.Call{
		Path:      args[0],
		Interface: opts.Interface,
		Method:    args[1],
		Args:      callArgs,
		Signature: opts.Signature,
		NoReply:   opts.NoReply,
	})
	if err != nil {
		_ = formatter.Error("E_ARGS", err.Error(), nil)
		return WrapExitError(ExitCommandError, "build call", err)
	}

	sender := &testutil.CaptureSender{}
	loopOpts := []loop.Option{loop.WithLogger(slog.Default())}
	if opts.DB != "" {
		store, err := journal.Open(opts.DB)
		if err != nil {
			_ = formatter.Error("E_DB", err.Error(), nil)
			return WrapExitError(ExitCommandError, "open journal", err)
		}
		defer store.Close()
		loopOpts = append(loopOpts, loop.WithJournal(store))
	}
	lp, err := loop.New(svc.Crossroads, sender, loopOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "create loop", err)
	}

	res := lp.Dispatch(context.Background(), msg)
	formatter.VerboseLog("dispatch %s seq=%d outcome=%s", res.ID, res.Seq, res.Outcome)

	result := CallResult{
		DispatchID: res.ID,
		Seq:        res.Seq,
		Outcome:    res.Outcome,
		ErrorName:  res.ErrorName,
		Messages:   []ir.MessageRecord{},
	}
	failed := res.Outcome == ir.OutcomeSendFailed ||
		res.Outcome == ir.OutcomePanicked ||
		res.Outcome == ir.OutcomeSilentError
	for _, m := range sender.Sent() {
		rec, err := ir.RecordMessage(m)
		if err != nil {
			return WrapExitError(ExitFailure, "record reply", err)
		}
		result.Messages = append(result.Messages, rec)
		if m.Type == dbus.TypeError {
			failed = true
			if result.ErrorName == "" {
				result.ErrorName = rec.ErrorName
			}
		}
	}

	if formatter.JSON() {
		if failed {
			_ = formatter.Failure("E_CALL_FAILED", callFailure(result), result)
		} else if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		for _, m := range result.Messages {
			formatter.Textf("%s", messageSummary(m))
		}
		if len(result.Messages) == 0 {
			formatter.Textf("(no messages, outcome %s)", result.Outcome)
		}
	}

	if failed {
		return NewExitError(ExitFailure, callFailure(result))
	}
	return nil
}

// parseArgs decodes the optional JSON argument array. Numbers stay
// json.Number so 64-bit integers survive.
func parseArgs(args []string) ([]any, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(args[0]))
	dec.UseNumber()
	var out []any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("args must be a JSON array: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("args must be a single JSON array")
	}
	return out, nil
}

func callFailure(r CallResult) string {
	if r.ErrorName != "" {
		return fmt.Sprintf("call failed: %s", r.ErrorName)
	}
	return fmt.Sprintf("call failed: %s", r.Outcome)
}

// formatBody renders a body as canonical JSON.
func formatBody(body ir.IRArray) string {
	if body == nil {
		body = ir.IRArray{}
	}
	data, err := ir.MarshalCanonical(body)
	if err != nil {
		return fmt.Sprint(body)
	}
	return string(data)
}
