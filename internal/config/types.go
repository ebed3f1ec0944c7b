package config

// Config is the on-disk (JSON or YAML) configuration. Secrets usually come
// from the environment instead; see env.go.
type Config struct {
	Slack     SlackConfig     `json:"slack"`
	LLM       LLMConfig       `json:"llm"`
	Horoscope HoroscopeConfig `json:"horoscope"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Broadcast BroadcastConfig `json:"broadcast"`
	HTTP      HTTPConfig      `json:"http"`
	Logging   LoggingConfig   `json:"logging"`
}

type SlackConfig struct {
	BotToken string `json:"bot_token,omitempty"`
	// AppToken enables Socket Mode (slash commands). Optional.
	AppToken string `json:"app_token,omitempty"`
	// SendRatePerSec caps chat.postMessage calls (default 1).
	SendRatePerSec float64 `json:"send_rate_per_sec,omitempty"`
	// PageSize is the users.list limit (default 500).
	PageSize int `json:"page_size,omitempty"`
	// Command is the slash command answered over Socket Mode (default "/horoscope").
	Command string `json:"command,omitempty"`
}

// LLMConfig selects the completion provider.
//
// Defaults (when fields are omitted/zero):
//   - provider: "openai"
//   - model: "gpt-4" (openai) / "gemini-2.0-flash" (gemini)
//   - max_tokens: 300
type LLMConfig struct {
	Provider  string `json:"provider,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	// BaseURL points the openai provider at a compatible endpoint.
	BaseURL string `json:"base_url,omitempty"`
	// Timeout is a Go duration string. "0s" or empty leaves the client default.
	Timeout string `json:"timeout,omitempty"`
}

type HoroscopeConfig struct {
	// BirthdateField is the Slack custom profile field id (e.g. "Xf01ABCDEF").
	BirthdateField string `json:"birthdate_field"`
	// Exclude lists display names (profile real_name) that never get a message.
	Exclude []string `json:"exclude,omitempty"`

	// Greeting may contain "{user}", replaced by a mention of the recipient.
	Greeting     string `json:"greeting,omitempty"`
	Heading      string `json:"heading,omitempty"`
	NotifyText   string `json:"notify_text,omitempty"`
	FallbackText string `json:"fallback_text,omitempty"`
}

// ScheduleConfig is the calendar rule for the daily broadcast.
//
// Example:
//
//	schedule: { timezone: "Asia/Seoul", at: "10:30", weekdays: "mon-fri" }
//
// Cron, when set, overrides At and Weekdays.
type ScheduleConfig struct {
	Timezone string `json:"timezone,omitempty"`
	At       string `json:"at,omitempty"`
	Weekdays string `json:"weekdays,omitempty"`
	Cron     string `json:"cron,omitempty"`
}

type BroadcastConfig struct {
	// Workers > 1 delivers through a bounded pool. Default 1 (sequential).
	Workers int `json:"workers,omitempty"`
	// ContinueOnError keeps going after a failed user instead of aborting the firing.
	ContinueOnError bool `json:"continue_on_error,omitempty"`
	// RunOnStart fires once right after startup.
	RunOnStart bool `json:"run_on_start,omitempty"`
}

type HTTPConfig struct {
	// Port for /healthz and /status (default "3000"). "off" disables the server.
	Port  string `json:"port,omitempty"`
	Host  string `json:"host,omitempty"`
	Pprof bool   `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level,omitempty"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Slack   LoggingSlack `json:"slack"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingSlack struct {
	Enabled    bool   `json:"enabled"`
	Channel    string `json:"channel,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}
