package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool            `json:"valid"`
	Files      int             `json:"files,omitempty"`
	Interfaces int             `json:"interfaces,omitempty"`
	Objects    int             `json:"objects,omitempty"`
	Errors     []ManifestError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs>...",
		Short: "Validate manifests without serving them",
		Long: `Validate CUE manifests.

Loads every path (a .cue file or a directory of them), unifies them and
checks interface names, member names, type signatures, implementations
and objects. The service is then built to catch registration problems.

Exit codes:
  0 - Manifest valid
  1 - Manifest invalid
  2 - Command error (missing path, no .cue files)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specs []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	svc, err := loadService(formatter, specs, slog.Default())
	if err != nil {
		return err
	}

	m := svc.Manifest
	if formatter.JSON() {
		return formatter.Success(ValidationResult{
			Valid:      true,
			Files:      m.FileCount,
			Interfaces: len(m.Interfaces),
			Objects:    len(m.Objects),
		})
	}
	formatter.Textf("%s Manifest valid: %d interface(s), %d object(s)", markPass, len(m.Interfaces), len(m.Objects))
	return nil
}
