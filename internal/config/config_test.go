package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAgentMap(t *testing.T) {
	m := parseAgentMap("immigration=agent_imm, personal_injury=agent_pi,general=agent_gen")
	assert.Equal(t, "agent_imm", m["immigration"])
	assert.Equal(t, "agent_pi", m["personal_injury"])
	assert.Equal(t, "agent_gen", m["general"])

	assert.Empty(t, parseAgentMap(""))
	// malformed entries are skipped
	assert.Empty(t, parseAgentMap("justakey,=nokey"))
}

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := LoadFromEnv()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10, cfg.CallsPerMinute)
	assert.Equal(t, 100, cfg.CallsPerHour)
	assert.Equal(t, 500, cfg.CallsPerDay)
	assert.Equal(t, 30, cfg.StatusRetentionDays)
	assert.Equal(t, 90, cfg.SecurityRetentionDays)
	assert.False(t, cfg.AllowUnsignedWebhooks)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("CALLS_PER_MINUTE", "3")
	t.Setenv("WEBHOOK_ALLOW_UNSIGNED", "true")
	t.Setenv("PRACTICE_AREA_AGENTS", "family=agent_fam")
	t.Setenv("OUTBOUND_CALLS_PER_SECOND", "2.5")
	t.Setenv("ESCALATION_CONTACT_ID", "admin-42")
	t.Setenv("API_IP_ALLOWLIST", "10.0.0.1, 10.0.0.2")

	cfg := LoadFromEnv()
	assert.Equal(t, 3, cfg.CallsPerMinute)
	assert.True(t, cfg.AllowUnsignedWebhooks)
	assert.Equal(t, "agent_fam", cfg.AgentsByPracticeArea["family"])
	assert.Equal(t, 2.5, cfg.OutboundCallsPerSecond)
	assert.Equal(t, "admin-42", cfg.EscalationContactID)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.APIIPAllowlist)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitAndTrim(" a , b ", ","))
	assert.Empty(t, SplitAndTrim("", ","))
}
