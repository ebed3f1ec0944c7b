package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultTimezone   = "Asia/Seoul"
	DefaultAt         = "10:30"
	DefaultWeekdays   = "mon-fri"
	DefaultPageSize   = 500
	DefaultMaxTokens  = 300
	DefaultPort       = "3000"
	DefaultCommand    = "/horoscope"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	defaultOpenAIName = "gpt-4"
	defaultGeminiName = "gemini-2.0-flash"
)

// ApplyDefaults fills zero values in place.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Slack.PageSize <= 0 {
		cfg.Slack.PageSize = DefaultPageSize
	}
	if cfg.Slack.SendRatePerSec <= 0 {
		cfg.Slack.SendRatePerSec = 1
	}
	if strings.TrimSpace(cfg.Slack.Command) == "" {
		cfg.Slack.Command = DefaultCommand
	}

	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderOpenAI
	}
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		switch cfg.LLM.Provider {
		case ProviderGemini:
			cfg.LLM.Model = defaultGeminiName
		default:
			cfg.LLM.Model = defaultOpenAIName
		}
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = DefaultMaxTokens
	}

	if strings.TrimSpace(cfg.Schedule.Timezone) == "" {
		cfg.Schedule.Timezone = DefaultTimezone
	}
	if strings.TrimSpace(cfg.Schedule.At) == "" {
		cfg.Schedule.At = DefaultAt
	}
	if strings.TrimSpace(cfg.Schedule.Weekdays) == "" {
		cfg.Schedule.Weekdays = DefaultWeekdays
	}

	if cfg.Broadcast.Workers <= 0 {
		cfg.Broadcast.Workers = 1
	}
	if strings.TrimSpace(cfg.HTTP.Port) == "" {
		cfg.HTTP.Port = DefaultPort
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Slack.RatePerSec <= 0 {
		cfg.Logging.Slack.RatePerSec = 1
	}
}

// Validate reports every problem at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Slack.BotToken) == "" {
		errs = append(errs, errors.New("slack.bot_token (SLACK_BOT_TOKEN) is required"))
	}
	switch cfg.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unsupported %q (use openai or gemini)", cfg.LLM.Provider))
	}
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		errs = append(errs, fmt.Errorf("llm.api_key is required for provider %q", cfg.LLM.Provider))
	}
	if _, err := ParseDurationField("llm.timeout", cfg.LLM.Timeout); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(cfg.Horoscope.BirthdateField) == "" {
		errs = append(errs, errors.New("horoscope.birthdate_field (BIRTHDATE_FIELD_KEY) is required"))
	}
	if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
	}
	if _, err := CronSpec(cfg.Schedule); err != nil {
		errs = append(errs, err)
	}
	if cfg.Broadcast.Workers > 64 {
		errs = append(errs, errors.New("broadcast.workers must be <= 64"))
	}
	return errors.Join(errs...)
}
