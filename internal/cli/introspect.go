package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/roach88/crossroads/internal/dispatch"
)

// IntrospectOptions holds flags for the introspect command.
type IntrospectOptions struct {
	*RootOptions
	Specs []string
}

// ObjectSummary lists the interfaces of one object.
type ObjectSummary struct {
	Path       string   `json:"path"`
	Interfaces []string `json:"interfaces"`
}

// IntrospectResult is the introspect output: the object list, or one
// object's introspection document.
type IntrospectResult struct {
	Objects []ObjectSummary `json:"objects,omitempty"`
	Path    string          `json:"path,omitempty"`
	XML     string          `json:"xml,omitempty"`
}

// NewIntrospectCommand creates the introspect command.
func NewIntrospectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IntrospectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "introspect [path]",
		Short: "Show the objects a manifest declares",
		Long: `Without a path, list every declared object and its interfaces.
With a path, print the object's introspection document as a bus peer
would receive it.

Examples:
  crossroads introspect --spec ./calc
  crossroads introspect --spec ./calc /com/example/calc`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntrospect(opts, args, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Specs, "spec", nil, "manifest file or directory (repeatable)")
	_ = cmd.MarkFlagRequired("spec")

	return cmd
}

func runIntrospect(opts *IntrospectOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	svc, err := loadService(formatter, opts.Specs, slog.Default())
	if err != nil {
		return err
	}
	cr := svc.Crossroads

	if len(args) == 0 {
		result := IntrospectResult{Objects: []ObjectSummary{}}
		for _, p := range cr.Paths() {
			result.Objects = append(result.Objects, ObjectSummary{
				Path:       string(p),
				Interfaces: cr.Interfaces(p),
			})
		}
		if formatter.JSON() {
			return formatter.Success(result)
		}
		for _, o := range result.Objects {
			formatter.Textf("%s", o.Path)
			for _, name := range o.Interfaces {
				formatter.Textf("  %s", name)
			}
		}
		return nil
	}

	path := dbus.ObjectPath(args[0])
	if !path.IsValid() {
		_ = formatter.Error("E_ARGS", fmt.Sprintf("invalid object path %q", args[0]), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid object path %q", args[0]))
	}
	doc, err := cr.Introspect(path)
	if err != nil {
		code := "E_INTROSPECT"
		if me := dispatch.AsMethodError(err); me != nil {
			code = me.Name
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitFailure, "introspect", err)
	}

	if formatter.JSON() {
		return formatter.Success(IntrospectResult{Path: string(path), XML: doc})
	}
	fmt.Fprint(formatter.Writer, doc)
	if !strings.HasSuffix(doc, "\n") {
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}
