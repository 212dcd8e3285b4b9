package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestServerListParsesPairs verifies name=url parsing, per-server timeout
// overrides, disabled flags, and name-sorted output.
func TestServerListParsesPairs(t *testing.T) {
	cfg := ToolsConfig{
		Servers:          "weather=http://localhost:8001, fieldrules=http://localhost:8002",
		Disabled:         []string{"fieldrules"},
		TimeoutMS:        map[string]int{"weather": 1500},
		DefaultTimeoutMS: 2000,
	}

	servers, err := cfg.ServerList()
	require.NoError(t, err)
	require.Len(t, servers, 2)

	assert.Equal(t, "fieldrules", servers[0].Name)
	assert.Equal(t, "http://localhost:8002", servers[0].BaseURL)
	assert.False(t, servers[0].Enabled)
	assert.Equal(t, 2*time.Second, servers[0].Timeout)

	assert.Equal(t, "weather", servers[1].Name)
	assert.True(t, servers[1].Enabled)
	assert.Equal(t, 1500*time.Millisecond, servers[1].Timeout)
}

// TestServerListEmptyConfig verifies an unset TOOL_SERVERS yields no entries.
func TestServerListEmptyConfig(t *testing.T) {
	servers, err := ToolsConfig{DefaultTimeoutMS: 2000}.ServerList()
	require.NoError(t, err)
	assert.Empty(t, servers)
}

// TestServerListRejectsMalformedEntries covers the config failure modes.
func TestServerListRejectsMalformedEntries(t *testing.T) {
	cases := []struct {
		name string
		cfg  ToolsConfig
	}{
		{"missing url", ToolsConfig{Servers: "weather", DefaultTimeoutMS: 2000}},
		{"empty name", ToolsConfig{Servers: "=http://localhost:8001", DefaultTimeoutMS: 2000}},
		{"duplicate name", ToolsConfig{Servers: "weather=http://a,weather=http://b", DefaultTimeoutMS: 2000}},
		{"non-positive timeout", ToolsConfig{Servers: "weather=http://a", DefaultTimeoutMS: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.cfg.ServerList()
			assert.Error(t, err)
		})
	}
}

// TestHealthTimeoutDefault verifies the probe deadline falls back when unset.
func TestHealthTimeoutDefault(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, ToolsConfig{}.HealthTimeout())
	assert.Equal(t, 250*time.Millisecond, ToolsConfig{HealthTimeoutMS: 250}.HealthTimeout())
}

// TestFieldConfigProfile verifies env defaults map onto the domain profile.
func TestFieldConfigProfile(t *testing.T) {
	cfg := FieldConfig{FieldID: "f1", Crop: "cotton", SoilType: "sandy_loam", Region: "Arizona", Lat: 33.45, Lon: -112.07}
	p := cfg.Profile()

	assert.Equal(t, "f1", p.FieldID)
	assert.Equal(t, "cotton", p.Crop)
	assert.InDelta(t, 33.45, p.Lat, 1e-9)
}
