package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamIndex(t *testing.T) {
	composed := "caf" + string(rune(0x00e9))
	decomposed := "cafe" + string(rune(0x0301))

	tests := []struct {
		name   string
		params []string
		lookup string
		want   int
	}{
		{"exact", []string{"client", "name"}, "name", 1},
		{"missing", []string{"client", "name"}, "species", -1},
		{"decomposed param", []string{"client", decomposed}, composed, 1},
		{"decomposed lookup", []string{composed}, decomposed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &FunctionSpec{Name: "f"}
			for _, p := range tt.params {
				s.Params = append(s.Params, Param{Name: p})
			}
			assert.Equal(t, tt.want, s.ParamIndex(tt.lookup))
		})
	}
}
