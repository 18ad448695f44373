package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringReflectsBuildVersion(t *testing.T) {
	t.Cleanup(ForTesting("1.2.3-test"))
	assert.Equal(t, "1.2.3-test", String())
}

func TestCheckMismatch(t *testing.T) {
	tests := []struct {
		name        string
		local       string
		server      string
		wantWarning bool
	}{
		{"same version", "0.3.0", "0.3.0", false},
		{"different version", "0.3.0", "0.2.0", true},
		{"server dev", "0.3.0", "dev", false},
		{"local dev", "dev", "0.3.0", false},
		{"empty server", "0.3.0", "", false},
		{"empty local", "", "0.3.0", false},
		{"describe suffix same base", "0.3.0-5-gabcdef", "0.3.0", false},
		{"describe suffix different base", "0.3.0-5-gabcdef", "0.2.0", true},
		{"v prefix", "v0.3.0", "0.3.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(ForTesting(tt.local))
			got := CheckMismatch(tt.server)
			if !tt.wantWarning {
				assert.Empty(t, got)
				return
			}
			assert.Contains(t, got, "WARNING: voxflux ")
			assert.Contains(t, got, "server ")
			assert.Contains(t, got, "restart the server")
		})
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := map[string]string{
		"v0.3.0":               "0.3.0",
		"0.3.0-5-gabcdef":      "0.3.0",
		"v0.3.0-10-g1234567":   "0.3.0",
		"0.3.0-rc1":            "0.3.0-rc1",
		"0.3.0-beta-5-gabcdef": "0.3.0-beta",
		"dev":                  "dev",
		"":                     "",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeVersion(in), in)
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v0.3.0", FormatVersion("0.3.0"))
	assert.Equal(t, "v0.3.0", FormatVersion("v0.3.0"))
	assert.Equal(t, "dev", FormatVersion("dev"))
	assert.Equal(t, "", FormatVersion(""))
}
