package config

import (
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// envOverlay holds the deployment environment variables. Set values win
// over the file.
type envOverlay struct {
	SlackBotToken  string   `envconfig:"SLACK_BOT_TOKEN"`
	SlackAppToken  string   `envconfig:"SLACK_APP_TOKEN"`
	OpenAIKey      string   `envconfig:"OPENAI_API_KEY"`
	GeminiKey      string   `envconfig:"GEMINI_API_KEY"`
	LLMProvider    string   `envconfig:"LLM_PROVIDER"`
	Port           string   `envconfig:"PORT"`
	BirthdateField string   `envconfig:"BIRTHDATE_FIELD_KEY"`
	ExceptionUsers []string `envconfig:"EXCEPTION_USER_LIST"`
	Timezone       string   `envconfig:"HOROBOT_TIMEZONE"`
	LogLevel       string   `envconfig:"LOG_LEVEL"`
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var e envOverlay
	if err := envconfig.Process("", &e); err != nil {
		return err
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Slack.BotToken, e.SlackBotToken)
	set(&cfg.Slack.AppToken, e.SlackAppToken)
	set(&cfg.LLM.Provider, e.LLMProvider)
	set(&cfg.HTTP.Port, e.Port)
	set(&cfg.Horoscope.BirthdateField, e.BirthdateField)
	set(&cfg.Schedule.Timezone, e.Timezone)
	set(&cfg.Logging.Level, e.LogLevel)

	// The key variable follows the selected provider.
	switch strings.ToLower(strings.TrimSpace(cfg.LLM.Provider)) {
	case ProviderGemini:
		set(&cfg.LLM.APIKey, e.GeminiKey)
	default:
		set(&cfg.LLM.APIKey, e.OpenAIKey)
	}

	if len(e.ExceptionUsers) > 0 {
		names := make([]string, 0, len(e.ExceptionUsers))
		for _, n := range e.ExceptionUsers {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		cfg.Horoscope.Exclude = names
	}
	return nil
}
