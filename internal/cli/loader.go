package cli

import (
	"errors"
	"log/slog"

	"github.com/roach88/crossroads/internal/dispatch"
	"github.com/roach88/crossroads/internal/manifest"
	"github.com/roach88/crossroads/internal/service"
)

// ManifestError is one manifest problem in CLI output.
type ManifestError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// toManifestErrors flattens loader errors for output.
func toManifestErrors(errs []error) []ManifestError {
	out := make([]ManifestError, 0, len(errs))
	for _, err := range errs {
		var le *manifest.LoadError
		if !errors.As(err, &le) {
			out = append(out, ManifestError{Code: manifest.ErrCodeGeneric, Message: err.Error()})
			continue
		}
		me := ManifestError{Code: le.Code, Field: le.Field, Message: le.Message}
		if le.Pos.IsValid() {
			me.File = le.Pos.Filename()
			me.Line = le.Pos.Line()
			me.Column = le.Pos.Column()
		}
		out = append(out, me)
	}
	return out
}

// isSetupError reports whether errs come from finding or reading files
// rather than from their content.
func isSetupError(errs []error) bool {
	if len(errs) != 1 {
		return false
	}
	var le *manifest.LoadError
	if !errors.As(errs[0], &le) {
		return false
	}
	switch le.Code {
	case manifest.ErrCodeNotFound, manifest.ErrCodeScanError, manifest.ErrCodeNoFiles:
		return true
	}
	return false
}

// loadService loads the manifests at specs and builds a service from them.
// Manifest problems are reported through f and returned as an ExitError.
func loadService(f *OutputFormatter, specs []string, logger *slog.Logger, opts ...dispatch.Option) (*service.Service, error) {
	m, errs := manifest.LoadAll(specs...)
	if len(errs) > 0 {
		code := ExitFailure
		if isSetupError(errs) {
			code = ExitCommandError
		}
		outputManifestErrors(f, errs)
		return nil, NewExitError(code, errs[0].Error())
	}
	f.VerboseLog("Loaded %d CUE file(s): %d interface(s), %d object(s)",
		m.FileCount, len(m.Interfaces), len(m.Objects))

	svc, err := service.Build(m, logger, opts...)
	if err != nil {
		_ = f.Error(manifest.ErrCodeGeneric, err.Error(), nil)
		return nil, WrapExitError(ExitFailure, "build service", err)
	}
	return svc, nil
}

// outputManifestErrors prints manifest errors in the configured format.
func outputManifestErrors(f *OutputFormatter, errs []error) {
	list := toManifestErrors(errs)
	if f.JSON() {
		_ = f.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: list},
			Error:  &CLIError{Code: list[0].Code, Message: list[0].Message},
		})
		return
	}

	f.Textf("%s Manifest invalid", markFail)
	f.Textf("")
	for _, e := range list {
		if e.Line > 0 {
			f.Textf("%s:%d:%d", e.File, e.Line, e.Column)
		}
		if e.Field != "" {
			f.Textf("  %s: %s: %s", e.Code, e.Field, e.Message)
		} else {
			f.Textf("  %s: %s", e.Code, e.Message)
		}
		f.Textf("")
	}
}
