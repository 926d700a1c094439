// Package tenant implements per-guild configuration and the policy
// administration service the bot gateway calls into.
package tenant

import (
	"strings"

	"github.com/wardenbot/warden/internal/policy"
)

// Provider names an AI-provider integration a tenant may select.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// KnownProvider reports whether p is a supported provider choice.
func KnownProvider(p Provider) bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return true
	}
	return false
}

// Settings carries per-tenant behavior toggles.
type Settings struct {
	// DefaultAnalysisPeriod is the lookback window, in hours, used when an
	// analysis command gives none.
	DefaultAnalysisPeriod int  `json:"default_analysis_period"`
	UseCustomPrompt       bool `json:"use_custom_prompt"`
}

// Config is one tenant's full configuration. The guild policy lives only in
// its own record (policy churn is higher than config churn) and is never
// duplicated here.
type Config struct {
	TenantID           string   `json:"tenant_id"`
	DisplayName        string   `json:"display_name,omitempty"`
	Provider           Provider `json:"provider"`
	CustomPrompt       string   `json:"custom_prompt,omitempty"`
	AnalyzedChannelIDs []string `json:"analyzed_channel_ids"`
	CommunityRules     []string `json:"community_rules"`
	AdminRoleIDs       []string `json:"admin_role_ids"`
	Settings           Settings `json:"settings"`
}

// NewConfig returns the default configuration for a fresh tenant.
func NewConfig(tenantID string) *Config {
	return &Config{
		TenantID:           tenantID,
		Provider:           ProviderOpenAI,
		AnalyzedChannelIDs: []string{},
		CommunityRules:     []string{},
		AdminRoleIDs:       []string{},
		Settings: Settings{
			DefaultAnalysisPeriod: 24,
		},
	}
}

// Normalize trims and deduplicates an ID list, preserving first-seen order.
func Normalize(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Snapshot pairs a tenant's config with its policy for display/audit views.
type Snapshot struct {
	Config *Config             `json:"config"`
	Policy *policy.GuildPolicy `json:"policy"`
}
