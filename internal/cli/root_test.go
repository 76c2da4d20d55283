package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "inlinesql", cmd.Use)
	assert.Contains(t, cmd.Long, "positional")

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"compile", "run", "test"})
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		path      []string // empty for persistent root flags
		flag      string
		shorthand string
		def       string
		typ       string
	}{
		{nil, "verbose", "v", "false", "bool"},
		{nil, "format", "", "text", "string"},
		{nil, "config", "", "", "string"},
		{nil, "markers", "", "", "string"},
		{[]string{"compile"}, "output", "o", "", "string"},
		{[]string{"compile"}, "catalog", "", "", "string"},
		{[]string{"compile"}, "workers", "", "0", "int"},
		{[]string{"run"}, "arg", "", "[]", "stringArray"},
		{[]string{"run"}, "driver", "", "sqlite3", "string"},
		{[]string{"run"}, "dsn", "", "", "string"},
		{[]string{"run"}, "cache-size", "", "256", "int"},
		{[]string{"test"}, "update", "", "false", "bool"},
		{[]string{"test"}, "filter", "", "", "string"},
	}

	root := NewRootCommand()
	for _, tt := range tests {
		t.Run(strings.Join(append(tt.path, tt.flag), "/"), func(t *testing.T) {
			flags := root.PersistentFlags()
			if len(tt.path) > 0 {
				sub, _, err := root.Find(tt.path)
				require.NoError(t, err)
				flags = sub.Flags()
			}

			f := flags.Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.shorthand, f.Shorthand)
			assert.Equal(t, tt.def, f.DefValue)
			assert.Equal(t, tt.typ, f.Value.Type())
		})
	}
}

func TestFormatValidation(t *testing.T) {
	for format, ok := range map[string]bool{"text": true, "json": true, "xml": false, "": false, "TEXT": false} {
		assert.Equal(t, ok, isValidFormat(format), format)
	}
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "compile", "."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestConfigFileSetsFormat(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "inlinesql.yaml", "format: json\n")

	opts := &RootOptions{Format: "text", ConfigFile: cfgPath}
	cmd := NewCompileCommand(opts)

	cfg, err := opts.load(cmd)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, cfg.FileUsed)
	assert.Equal(t, "json", opts.Format)
}

func TestConfigFileInvalid(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "inlinesql.yaml", "format: xml\n")

	opts := &RootOptions{Format: "text", ConfigFile: cfgPath}
	cmd := NewCompileCommand(opts)

	_, err := opts.load(cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeConfig)
}
