package market

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CalendarEvent is one scheduled economic release.
type CalendarEvent struct {
	Time       time.Time `yaml:"time"`
	Currencies []string  `yaml:"currencies"`
	Title      string    `yaml:"title"`
}

// Calendar answers whether a symbol sits inside a news blackout window.
type Calendar interface {
	NewsWindow(symbol string, now time.Time, before, after time.Duration) (bool, string)
}

// FileCalendar loads events from a YAML file maintained by the external
// calendar fetcher.
type FileCalendar struct {
	events []CalendarEvent
}

func LoadCalendar(path string) (*FileCalendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Events []CalendarEvent `yaml:"events"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}
	return &FileCalendar{events: doc.Events}, nil
}

// NewsWindow reports whether now falls inside [event-before, event+after] for
// any event touching one of the symbol's currencies.
func (c *FileCalendar) NewsWindow(symbol string, now time.Time, before, after time.Duration) (bool, string) {
	currencies := symbolCurrencies(symbol)
	for _, ev := range c.events {
		if !eventTouches(ev, currencies) {
			continue
		}
		if now.After(ev.Time.Add(-before)) && now.Before(ev.Time.Add(after)) {
			return true, fmt.Sprintf("news blackout: %s at %s", ev.Title, ev.Time.Format("15:04"))
		}
	}
	return false, ""
}

// symbolCurrencies splits a 6-letter FX pair into its two currencies; other
// symbols match on the whole name.
func symbolCurrencies(symbol string) []string {
	s := strings.ToUpper(symbol)
	if len(s) >= 6 {
		return []string{s[:3], s[3:6]}
	}
	return []string{s}
}

func eventTouches(ev CalendarEvent, currencies []string) bool {
	for _, evc := range ev.Currencies {
		for _, c := range currencies {
			if strings.EqualFold(evc, c) {
				return true
			}
		}
	}
	return false
}
