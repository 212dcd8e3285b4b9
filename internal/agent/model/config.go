package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ================ Config ================

// ConversationConfig controls turn-state persistence and classifier context.
type ConversationConfig struct {
	TTL        string `envconfig:"CONVERSATION_TTL" default:"15m"`
	Classifier struct {
		MaxTurns int `envconfig:"CONVERSATION_CLASSIFIER_MAX_TURNS" default:"5"`
	}
}

// ClassifierModelConfig configures the intent classification model.
type ClassifierModelConfig struct {
	Model         string  `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens     int     `envconfig:"CLASSIFIER_MAX_TOKENS" default:"1000"`
	Temperature   float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0.1"`
	KnownIntents  string  `envconfig:"CLASSIFIER_KNOWN_INTENTS" default:"irrigation_advice:0.8, pest_treatment:0.8, fertilization:0.7, weather_inquiry:0.6, general_advice:0.5"`
	KnownEntities string  `envconfig:"CLASSIFIER_KNOWN_ENTITIES" default:"crop, field, soil_type, growth_stage"`
}

// ComposerModelConfig configures the answer composition model.
type ComposerModelConfig struct {
	Model       string  `envconfig:"COMPOSER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"COMPOSER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"COMPOSER_TEMPERATURE" default:"0.4"`
}

// ComposerPromptConfig carries business identity tokens for the answer prompt.
type ComposerPromptConfig struct {
	AdvisoryName string `envconfig:"PROMPT_ADVISORY_NAME" default:"AgriMind"`
	Region       string `envconfig:"PROMPT_REGION" default:"Arizona"`
}

// AdvisoryConfig controls validation and the escalation branch.
type AdvisoryConfig struct {
	RulesPath           string  `envconfig:"RULES_PATH" default:"config/rules.yaml"`
	EscalationThreshold float64 `envconfig:"ESCALATION_THRESHOLD" default:"0.3"`
}

// FieldConfig seeds the default field profile for conversations that carry
// no saved profile yet.
type FieldConfig struct {
	FieldID  string  `envconfig:"FIELD_ID" default:"field-001"`
	Crop     string  `envconfig:"FIELD_CROP" default:"cotton"`
	SoilType string  `envconfig:"FIELD_SOIL_TYPE" default:"sandy_loam"`
	Region   string  `envconfig:"FIELD_REGION" default:"Arizona"`
	Lat      float64 `envconfig:"FIELD_LAT" default:"33.45"`
	Lon      float64 `envconfig:"FIELD_LON" default:"-112.07"`
}

// Profile converts the env-sourced config into the domain profile.
func (c FieldConfig) Profile() FieldProfile {
	return FieldProfile{
		FieldID:  c.FieldID,
		Crop:     c.Crop,
		SoilType: c.SoilType,
		Region:   c.Region,
		Lat:      c.Lat,
		Lon:      c.Lon,
	}
}

// ToolsConfig is the configuration surface for external tool servers.
//
// Servers lists name=url pairs, e.g.
// TOOL_SERVERS="weather=http://localhost:8001,fieldrules=http://localhost:8002".
// Kept as a raw string because base URLs contain colons, which the env
// decoder's map syntax cannot represent.
type ToolsConfig struct {
	Servers             string         `envconfig:"TOOL_SERVERS"`
	Disabled            []string       `envconfig:"TOOL_SERVERS_DISABLED"`
	TimeoutMS           map[string]int `envconfig:"TOOL_TIMEOUT_MS"`
	DefaultTimeoutMS    int            `envconfig:"TOOL_DEFAULT_TIMEOUT_MS" default:"2000"`
	HealthTimeoutMS     int            `envconfig:"TOOL_HEALTH_TIMEOUT_MS" default:"500"`
	MaxParallelCalls    int            `envconfig:"MAX_PARALLEL_CALLS" default:"4"`
	FallbackToSynthetic bool           `envconfig:"FALLBACK_TO_SYNTHETIC" default:"true"`
}

// ToolServer is one resolved tool-server entry.
type ToolServer struct {
	Name    string
	BaseURL string
	Enabled bool
	Timeout time.Duration
}

// ServerList resolves the raw env values into per-server entries, sorted by name.
func (c ToolsConfig) ServerList() ([]ToolServer, error) {
	disabled := make(map[string]bool, len(c.Disabled))
	for _, name := range c.Disabled {
		disabled[name] = true
	}

	var servers []ToolServer
	seen := make(map[string]bool)
	for _, pair := range strings.Split(c.Servers, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, baseURL, ok := strings.Cut(pair, "=")
		name, baseURL = strings.TrimSpace(name), strings.TrimSpace(baseURL)
		if !ok || name == "" || baseURL == "" {
			return nil, fmt.Errorf("tool server entry %q is not name=url", pair)
		}
		if seen[name] {
			return nil, fmt.Errorf("tool server %q listed twice", name)
		}
		seen[name] = true
		timeoutMS := c.DefaultTimeoutMS
		if ms, ok := c.TimeoutMS[name]; ok {
			timeoutMS = ms
		}
		if timeoutMS <= 0 {
			return nil, fmt.Errorf("tool server %q has non-positive timeout %dms", name, timeoutMS)
		}
		servers = append(servers, ToolServer{
			Name:    name,
			BaseURL: baseURL,
			Enabled: !disabled[name],
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		})
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers, nil
}

// HealthTimeout returns the per-probe deadline for GET /health.
func (c ToolsConfig) HealthTimeout() time.Duration {
	if c.HealthTimeoutMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.HealthTimeoutMS) * time.Millisecond
}
