package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp), buf.String())
	return resp
}

func TestFormatterJSON(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Success(map[string]int{"plans": 6}))

		resp := decodeResponse(t, buf)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, map[string]any{"plans": float64(6)}, resp.Data)
		assert.Nil(t, resp.Error)
	})

	t.Run("error with details", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Error(ErrCodeDecodeFailed, "unexpected token", map[string]int{"line": 4}))

		resp := decodeResponse(t, buf)
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeDecodeFailed, resp.Error.Code)
		assert.Equal(t, "unexpected token", resp.Error.Message)
		assert.Equal(t, map[string]any{"line": float64(4)}, resp.Error.Details)
	})

	t.Run("query text is not escaped", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Success(map[string]string{"query": "SELECT 1 WHERE a <> b && c > 0"}))

		assert.Contains(t, buf.String(), "a <> b && c > 0")
		assert.NotContains(t, buf.String(), `\u003c`)
	})
}

func TestFormatterText(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		write   func(*OutputFormatter) error
		want    []string
		notWant []string
	}{
		{
			name:  "success",
			write: func(f *OutputFormatter) error { return f.Success("6 plans") },
			want:  []string{"6 plans\n"},
		},
		{
			name:    "error hides details",
			write:   func(f *OutputFormatter) error { return f.Error(ErrCodeDiagnostics, "compilation failed", "owner") },
			want:    []string{"Error [E101]: compilation failed"},
			notWant: []string{"Details:"},
		},
		{
			name:    "verbose error shows details",
			verbose: true,
			write:   func(f *OutputFormatter) error { return f.Error(ErrCodeDiagnostics, "compilation failed", "owner") },
			want:    []string{"Error [E101]: compilation failed", "Details: owner"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}
			require.NoError(t, tt.write(f))

			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, buf.String(), w)
			}
		})
	}
}

func TestFormatterVerboseLog(t *testing.T) {
	t.Run("quiet", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}
		f.VerboseLog("Found %d function(s)", 3)
		assert.Empty(t, buf.String())
	})

	t.Run("falls back to Writer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}
		f.VerboseLog("Found %d function(s)", 3)
		assert.Equal(t, "Found 3 function(s)\n", buf.String())
	})

	t.Run("uses ErrWriter", func(t *testing.T) {
		out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}
		f.VerboseLog("Found %d function(s)", 3)
		assert.Empty(t, out.String())
		assert.Equal(t, "Found 3 function(s)\n", errOut.String())
	})
}

func TestFormatterTable(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	f.Table(table.Row{"NAME", "SPECIES"}, []table.Row{{"Rex", "dog"}, {"Tom", "cat"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// top border, header, separator, two rows, bottom border
	require.Len(t, lines, 6)
	assert.Contains(t, lines[1], "NAME")
	assert.Contains(t, lines[1], "SPECIES")
	assert.Contains(t, lines[3], "Rex")
	assert.Contains(t, lines[4], "cat")
}

func TestFormatterLogger(t *testing.T) {
	for _, verbose := range []bool{true, false} {
		t.Run(fmt.Sprintf("verbose=%v", verbose), func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: "text", Writer: buf, Verbose: verbose}

			logger := f.Logger()
			logger.Debug("plan ready", "function", "add_pet")
			logger.Warn("slow call", "function", "add_pet")

			assert.Contains(t, buf.String(), "level=WARN msg=\"slow call\" function=add_pet")
			assert.Equal(t, verbose, strings.Contains(buf.String(), "plan ready"))
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{[]byte("Rex"), "Rex"},
		{"dog", "dog"},
		{int64(3), "3"},
		{2.5, "2.5"},
		{true, "true"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatValue(tt.in), "%#v", tt.in)
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitFailure},
		{"failure", NewExitError(ExitFailure, "call failed"), ExitFailure},
		{"command", NewExitError(ExitCommandError, "bad path"), ExitCommandError},
		{"wrapped", fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "load", errors.New("inner"))), ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitErrorMessage(t *testing.T) {
	inner := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "writing output", inner)

	assert.Equal(t, "writing output: disk full", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "bad path", NewExitError(ExitCommandError, "bad path").Error())
}
