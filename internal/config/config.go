package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the call-lifecycle service configuration. Values are loaded
// from the environment; a .env file is loaded in cmd/server for local
// development using godotenv.Load().
type Config struct {
	Port   string
	LogEnv string

	// Telephony provider
	ProviderBaseURL        string
	ProviderAPIKey         string
	OutboundNumber         string
	OutboundCallsPerSecond float64

	// CRM
	CRMBaseURL string
	CRMAPIKey  string
	// EscalationContactID receives admin review and billing escalation tasks.
	EscalationContactID string

	// Request security
	WebhookSecret         string
	AllowUnsignedWebhooks bool
	APIKey                string
	AllowedOrigins        []string
	IPAllowlist           []string // webhook remote addresses
	APIIPAllowlist        []string // admin API remote addresses
	SecretKey             string   // HS256 secret for admin API tokens

	// Rate limits (calls per window)
	CallsPerMinute int
	CallsPerHour   int
	CallsPerDay    int

	// Follow-up campaigns
	PostCallCampaignID  string
	NoAnswerCampaignID  string
	VoicemailCampaignID string

	// Agent selection: practice area -> agent id
	AgentsByPracticeArea map[string]string
	GeneralAgentID       string

	// Retention
	StatusRetentionDays   int
	SecurityRetentionDays int
}

// LoadFromEnv builds a Config from environment variables.
func LoadFromEnv() *Config {
	cfg := &Config{
		Port:   GetEnvOrDefault("PORT", "8080"),
		LogEnv: GetEnvOrDefault("LOG_ENV", "development"),

		ProviderBaseURL:        GetEnvOrDefault("PROVIDER_BASE_URL", "https://api.voiceprovider.example.com"),
		ProviderAPIKey:         GetEnvOrDefault("PROVIDER_API_KEY", ""),
		OutboundNumber:         GetEnvOrDefault("OUTBOUND_PHONE_NUMBER", ""),
		OutboundCallsPerSecond: GetEnvAsFloatOrDefault("OUTBOUND_CALLS_PER_SECOND", 5),

		CRMBaseURL:          GetEnvOrDefault("CRM_BASE_URL", ""),
		CRMAPIKey:           GetEnvOrDefault("CRM_API_KEY", ""),
		EscalationContactID: GetEnvOrDefault("ESCALATION_CONTACT_ID", ""),

		WebhookSecret:         GetEnvOrDefault("WEBHOOK_SECRET", ""),
		AllowUnsignedWebhooks: GetEnvAsBoolOrDefault("WEBHOOK_ALLOW_UNSIGNED", false),
		APIKey:                GetEnvOrDefault("API_KEY", ""),
		AllowedOrigins:        SplitAndTrim(GetEnvOrDefault("ALLOWED_ORIGINS", ""), ","),
		IPAllowlist:           SplitAndTrim(GetEnvOrDefault("IP_ALLOWLIST", ""), ","),
		APIIPAllowlist:        SplitAndTrim(GetEnvOrDefault("API_IP_ALLOWLIST", ""), ","),
		SecretKey:             GetEnvOrDefault("SECRET_KEY", ""),

		CallsPerMinute: GetEnvAsIntOrDefault("CALLS_PER_MINUTE", 10),
		CallsPerHour:   GetEnvAsIntOrDefault("CALLS_PER_HOUR", 100),
		CallsPerDay:    GetEnvAsIntOrDefault("CALLS_PER_DAY", 500),

		PostCallCampaignID:  GetEnvOrDefault("POST_CALL_CAMPAIGN_ID", ""),
		NoAnswerCampaignID:  GetEnvOrDefault("NO_ANSWER_CAMPAIGN_ID", ""),
		VoicemailCampaignID: GetEnvOrDefault("VOICEMAIL_CAMPAIGN_ID", ""),

		AgentsByPracticeArea: parseAgentMap(GetEnvOrDefault("PRACTICE_AREA_AGENTS", "")),
		GeneralAgentID:       GetEnvOrDefault("GENERAL_AGENT_ID", ""),

		StatusRetentionDays:   GetEnvAsIntOrDefault("STATUS_RETENTION_DAYS", 30),
		SecurityRetentionDays: GetEnvAsIntOrDefault("SECURITY_RETENTION_DAYS", 90),
	}

	return cfg
}

// parseAgentMap parses "immigration=agent_imm,personal_injury=agent_pi"
// into a practice-area keyed map.
func parseAgentMap(raw string) map[string]string {
	agents := make(map[string]string)
	for _, pair := range SplitAndTrim(raw, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		area := strings.TrimSpace(parts[0])
		agent := strings.TrimSpace(parts[1])
		if area != "" && agent != "" {
			agents[area] = agent
		}
	}
	return agents
}

// GetEnvOrDefault gets an environment variable or returns the default.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsIntOrDefault gets an environment variable as int or returns the default.
func GetEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloatOrDefault gets an environment variable as float64 or returns the default.
func GetEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvAsBoolOrDefault gets an environment variable as bool or returns the default.
func GetEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetEnvAsDurationOrDefault gets an environment variable as a duration or returns the default.
func GetEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// SplitAndTrim splits a string by delimiter and trims whitespace from each
// part, dropping empties.
func SplitAndTrim(s, delimiter string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, delimiter)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
