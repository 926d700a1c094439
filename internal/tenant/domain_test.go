package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKnownProvider(t *testing.T) {
	assert.True(t, KnownProvider(ProviderOpenAI))
	assert.True(t, KnownProvider(ProviderAnthropic))
	assert.True(t, KnownProvider(ProviderGemini))
	assert.False(t, KnownProvider(Provider("")))
	assert.False(t, KnownProvider(Provider("skynet")))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Normalize([]string{" a", "b ", "a", "", "  "}))
	assert.Empty(t, Normalize(nil))
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig("T1")
	assert.Equal(t, "T1", cfg.TenantID)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, 24, cfg.Settings.DefaultAnalysisPeriod)
	assert.False(t, cfg.Settings.UseCustomPrompt)
	assert.NotNil(t, cfg.AnalyzedChannelIDs)
	assert.NotNil(t, cfg.AdminRoleIDs)
}
