package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// Load reads a manifest from a directory of .cue files sharing one package,
// or from a single .cue file.
func Load(path string) (*Manifest, []error) {
	return LoadAll(path)
}

// LoadAll loads each path as Load does and unifies the results into one
// manifest. Paths may use different packages; conflicting values are
// reported as build errors.
func LoadAll(paths ...string) (*Manifest, []error) {
	if len(paths) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: "no manifest paths given"}}
	}

	ctx := cuecontext.New()
	var merged cue.Value
	fileCount := 0
	for i, path := range paths {
		v, n, err := loadValue(ctx, path)
		if err != nil {
			return nil, []error{err}
		}
		fileCount += n
		if i == 0 {
			merged = v
		} else {
			merged = merged.Unify(v)
		}
	}

	if err := merged.Validate(); err != nil {
		le := formatCUEError(err, "").(*LoadError)
		le.Code = ErrCodeBuildFailed
		return nil, []error{le}
	}

	m, errs := Compile(merged)
	if m != nil {
		m.FileCount = fileCount
	}
	return m, errs
}

// loadValue builds the CUE value at path and reports how many files it
// was read from.
func loadValue(ctx *cue.Context, path string) (cue.Value, int, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest not found: %s", path)}
	}
	if err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("accessing manifest: %v", err)}
	}

	var dir string
	var args, files []string
	if info.IsDir() {
		dir, args = path, []string{"."}
		if files, err = FindCUEFiles(path); err != nil {
			return cue.Value{}, 0, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("scanning directory: %v", err)}
		}
	} else {
		if filepath.Ext(path) != ".cue" {
			return cue.Value{}, 0, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("not a .cue file: %s", path)}
		}
		dir, args, files = filepath.Dir(path), []string{filepath.Base(path)}, []string{path}
	}
	if len(files) == 0 {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
	}

	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	return ctx.BuildInstance(inst), len(files), nil
}

// FindCUEFiles returns the .cue files directly inside dir.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
