package compiler

import (
	"fmt"
	"os"
	"path/filepath"
)

// CompileFile decodes the function specs in one .cue, .yaml or .yml file.
func CompileFile(path string) ([]Function, []error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("read spec file: %w", err)}
	}

	switch filepath.Ext(path) {
	case ".cue":
		return CompileCUE(path, src)
	case ".yaml", ".yml":
		return CompileYAML(path, src)
	default:
		return nil, []error{fmt.Errorf("%s: unsupported spec file extension %q", path, filepath.Ext(path))}
	}
}

// IsSpecFile reports whether path has an extension CompileFile accepts.
func IsSpecFile(path string) bool {
	switch filepath.Ext(path) {
	case ".cue", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
