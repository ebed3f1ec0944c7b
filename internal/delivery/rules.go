package delivery

import (
	"strings"

	"horobot/internal/config"
)

const (
	DefaultGreeting     = "*{user}님, 오늘의 운세를 알려드립니다 🧙🪄*\n\n"
	DefaultHeading      = "🔮 *오늘의 운세:*\n"
	DefaultNotifyText   = "오늘의 운세를 알려드립니다!"
	DefaultFallbackText = "운세를 가져오지 못했습니다. 다시 시도해주세요."
)

// Rules decide who gets a message and what the message copy says. They can
// be swapped at runtime with Engine.Apply.
type Rules struct {
	BirthdateField string
	// Exclude holds display names that are never messaged.
	Exclude []string

	// Greeting is the first section; "{user}" becomes a mention.
	Greeting     string
	Heading      string
	NotifyText   string
	FallbackText string
}

// RulesFromConfig copies the horoscope section and fills default copy.
func RulesFromConfig(c config.HoroscopeConfig) Rules {
	r := Rules{
		BirthdateField: strings.TrimSpace(c.BirthdateField),
		Exclude:        append([]string(nil), c.Exclude...),
		Greeting:       c.Greeting,
		Heading:        c.Heading,
		NotifyText:     c.NotifyText,
		FallbackText:   c.FallbackText,
	}
	r.fill()
	return r
}

func (r *Rules) fill() {
	if r.Greeting == "" {
		r.Greeting = DefaultGreeting
	}
	if r.Heading == "" {
		r.Heading = DefaultHeading
	}
	if r.NotifyText == "" {
		r.NotifyText = DefaultNotifyText
	}
	if r.FallbackText == "" {
		r.FallbackText = DefaultFallbackText
	}
}

func (r Rules) excluded(displayName string) bool {
	for _, n := range r.Exclude {
		if n == displayName {
			return true
		}
	}
	return false
}
