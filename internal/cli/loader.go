package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/roach88/inlinesql/internal/compiler"
	"github.com/roach88/inlinesql/internal/config"
	"github.com/roach88/inlinesql/internal/ir"
)

// LoadMode controls how errors are handled during spec loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first file that fails to decode.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll decodes every file before returning.
	LoadModeCollectAll
)

// LoadResult contains the function specs decoded from a directory.
type LoadResult struct {
	Functions []compiler.Function
	FileCount int // Number of spec files found
}

// Specs returns the decoded specs in load order.
func (r *LoadResult) Specs() []*ir.FunctionSpec {
	specs := make([]*ir.FunctionSpec, len(r.Functions))
	for i, fn := range r.Functions {
		specs[i] = fn.Spec
	}
	return specs
}

// Lookup returns the named function.
func (r *LoadResult) Lookup(name string) (compiler.Function, bool) {
	for _, fn := range r.Functions {
		if fn.Spec.Name == name {
			return fn, true
		}
	}
	return compiler.Function{}, false
}

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadSpecs decodes every .cue, .yaml and .yml file under dir and applies
// the configured spec defaults. Files are read in lexical path order.
// Function names must be unique across the directory.
func LoadSpecs(dir string, mode LoadMode, cfg *config.Config) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err), Err: err}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindSpecFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err), Err: err}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no spec files found in %s", dir)}}
	}

	var (
		errs   []error
		result = &LoadResult{FileCount: len(files)}
		seen   = make(map[string]string)
	)
	for _, path := range files {
		fns, fileErrs := compiler.CompileFile(path)
		for _, e := range fileErrs {
			errs = append(errs, &LoadError{Code: ErrCodeDecodeFailed, Message: e.Error(), Err: e})
		}
		if len(fileErrs) > 0 && mode == LoadModeFailFast {
			return result, errs
		}

		for _, fn := range fns {
			if prev, dup := seen[fn.Spec.Name]; dup {
				errs = append(errs, &LoadError{
					Code:    ErrCodeDuplicate,
					Message: fmt.Sprintf("%s: function %s is already defined in %s", fn.Spec.Pos, fn.Spec.Name, prev),
				})
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			seen[fn.Spec.Name] = path
			cfg.ApplyDefaults(fn.Spec)
			result.Functions = append(result.Functions, fn)
		}
	}

	if len(result.Functions) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no functions found in %s", dir)})
	}

	return result, errs
}

// FindSpecFiles walks the directory and returns all spec file paths, sorted.
func FindSpecFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && compiler.IsSpecFile(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// Error code constants, unified across all CLI commands.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeScanError    = "E002" // Directory scan error
	ErrCodeNoFiles      = "E003" // No spec files or functions found
	ErrCodeDecodeFailed = "E004" // CUE/YAML spec could not be decoded
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeDuplicate    = "E006" // Function defined twice
	ErrCodeWriteFailed  = "E007" // File or catalog write error
	ErrCodeConfig       = "E008" // Invalid configuration

	// Compile diagnostics
	ErrCodeDiagnostics = "E101"

	// Runtime
	ErrCodeUnknownFunction = "E201"
	ErrCodeBadArgument     = "E202"
	ErrCodeCallFailed      = "E203"
	ErrCodeConnectFailed   = "E204"

	// Scenarios
	ErrCodeTestFailed = "E_TEST_FAILED"
)
