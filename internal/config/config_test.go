package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 108, s.TotalBeds)
	assert.Equal(t, 3*time.Hour, s.HoldDuration)
	assert.Equal(t, 30*time.Second, s.ExpirationTick)
	assert.Equal(t, 20*time.Second, s.IdleSessionTimeout)
	assert.Equal(t, 10*time.Second, s.ToolCallDeadline)
	assert.Equal(t, 8, s.AllocationRetryMax)
}

func TestLoadHonorsEnvironment(t *testing.T) {
	t.Setenv("SHELTER_HOLD_DURATION", "2h")
	t.Setenv("SHELTER_EXPIRATION_TICK", "45s")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, s.HoldDuration)
	assert.Equal(t, 45*time.Second, s.ExpirationTick)
}

func TestValidateRejectsLongTick(t *testing.T) {
	t.Setenv("SHELTER_EXPIRATION_TICK", "2m")

	_, err := Load()
	assert.Error(t, err)
}

func TestDefaultKeywordsCoverAllLanguages(t *testing.T) {
	kw := DefaultKeywords()

	for _, lang := range []string{"en", "es", "pt", "fr"} {
		assert.NotEmpty(t, kw.Crisis[lang], "crisis list for %s", lang)
		assert.NotEmpty(t, kw.Farewell[lang], "farewell list for %s", lang)
	}
	assert.NotEmpty(t, kw.Bed)
}

func TestLoadKeywordsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	content := []byte("crisis:\n  en:\n    - \"end it all\"\nbed:\n  - \"cot\"\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	kw, err := LoadKeywords(path)
	require.NoError(t, err)

	// Loaded lists replace their defaults wholesale.
	assert.Equal(t, []string{"end it all"}, kw.Crisis["en"])
	assert.Equal(t, []string{"cot"}, kw.Bed)

	// Untouched sections keep the defaults.
	assert.NotEmpty(t, kw.Farewell["en"])
}

func TestLoadKeywordsEmptyPathUsesDefaults(t *testing.T) {
	kw, err := LoadKeywords("")
	require.NoError(t, err)
	assert.NotEmpty(t, kw.Crisis["en"])
}
