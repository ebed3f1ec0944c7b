package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronSpec turns the calendar rule into a five-field cron expression.
//
//	{at: "10:30", weekdays: "mon-fri"} -> "30 10 * * mon-fri"
//
// An explicit Cron wins over At/Weekdays.
func CronSpec(s ScheduleConfig) (string, error) {
	if expr := strings.TrimSpace(s.Cron); expr != "" {
		if _, err := cronParser.Parse(expr); err != nil {
			return "", fmt.Errorf("schedule.cron: invalid %q: %w", expr, err)
		}
		return expr, nil
	}

	at := s.At
	if strings.TrimSpace(at) == "" {
		at = DefaultAt
	}
	h, m, err := ParseHHMM(at)
	if err != nil {
		return "", fmt.Errorf("schedule.at: %w", err)
	}
	dow := normalizeWeekdays(s.Weekdays)
	spec := fmt.Sprintf("%d %d * * %s", m, h, dow)
	if _, err := cronParser.Parse(spec); err != nil {
		return "", fmt.Errorf("schedule.weekdays: invalid %q: %w", s.Weekdays, err)
	}
	return spec, nil
}

func normalizeWeekdays(raw string) string {
	v := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	switch v {
	case "":
		return DefaultWeekdays
	case "weekdays", "weekday":
		return "1-5"
	case "weekend", "weekends":
		return "0,6"
	case "daily", "everyday", "all":
		return "*"
	default:
		return v
	}
}

// ParseHHMM parses a 24h wall-clock time like "09:05".
func ParseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
