package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_Locations(t *testing.T) {
	l := NewLayout("/proj")

	assert.Equal(t, "/proj/.whylson", l.Dir())
	assert.Equal(t, "/proj/.whylson/contracts.json", l.RegistryPath())
	assert.Equal(t, "/proj/.whylson/bin-contracts", l.ArtifactDir())
	assert.Equal(t, "/proj/.whylson/settings.yaml", l.SettingsPath())
	assert.Equal(t, "/proj/.whylson/history.db", l.HistoryPath())
}

func TestNewLayout_RelativeRootBecomesAbsolute(t *testing.T) {
	l := NewLayout("some/dir")
	assert.True(t, filepath.IsAbs(l.Root))
}

func TestArtifactPath(t *testing.T) {
	l := NewLayout("/proj")

	tests := []struct {
		source string
		want   string
	}{
		{"/proj/src/counter.mligo", "/proj/.whylson/bin-contracts/counter.tz"},
		{"/proj/deep/nested/dir/token.jsligo", "/proj/.whylson/bin-contracts/token.tz"},
		{"/elsewhere/vault.religo", "/proj/.whylson/bin-contracts/vault.tz"},
		{"/proj/multi.part.ligo", "/proj/.whylson/bin-contracts/multi.part.tz"},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, l.ArtifactPath(tt.source))
		})
	}
}

func TestArtifactPath_Deterministic(t *testing.T) {
	l := NewLayout("/proj")
	src := "/proj/src/counter.mligo"

	first := l.ArtifactPath(src)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, l.ArtifactPath(src))
	}
}

func TestArtifactPath_EqualOutputsShareStem(t *testing.T) {
	l := NewLayout("/proj")
	sources := []string{
		"/proj/a/counter.mligo",
		"/proj/b/counter.jsligo",
		"/proj/a/token.mligo",
		"/proj/c/vault.religo",
	}

	for _, a := range sources {
		for _, b := range sources {
			if l.ArtifactPath(a) == l.ArtifactPath(b) {
				assert.Equal(t, Stem(a), Stem(b), "%s and %s", a, b)
			}
		}
	}
}

func TestResolve(t *testing.T) {
	l := NewLayout("/proj")
	assert.Equal(t, "/proj/src/a.mligo", l.Resolve("src/a.mligo"))
	assert.Equal(t, "/abs/a.mligo", l.Resolve("/abs/./a.mligo"))
}

func TestMatcher_Defaults(t *testing.T) {
	m, err := NewMatcher()
	require.NoError(t, err)

	assert.True(t, m.IsSource("/p/a.mligo"))
	assert.True(t, m.IsSource("/p/a.jsligo"))
	assert.True(t, m.IsSource("/p/a.religo"))
	assert.True(t, m.IsSource("/p/a.ligo"))
	assert.False(t, m.IsSource("/p/a.tz"))
	assert.False(t, m.IsSource("/p/a.go"))
	assert.Equal(t, DefaultSourcePatterns, m.Patterns())
}

func TestMatcher_Custom(t *testing.T) {
	m, err := NewMatcher("*.mligo", "contract_*.ligo")
	require.NoError(t, err)

	assert.True(t, m.IsSource("/x/contract_token.ligo"))
	assert.False(t, m.IsSource("/x/token.ligo"))
}

func TestMatcher_InvalidPattern(t *testing.T) {
	_, err := NewMatcher("[unclosed")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}
