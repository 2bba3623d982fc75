package domain

import (
	"fmt"
	"strings"
	"time"
)

// Cadence is how often a subscriber hears about new episodes.
type Cadence string

const (
	CadenceImmediate Cadence = "immediate"
	CadenceDaily     Cadence = "daily"
	CadenceWeekly    Cadence = "weekly"
)

// Cadences lists the supported cadences in evaluation order.
func Cadences() []Cadence {
	return []Cadence{CadenceImmediate, CadenceDaily, CadenceWeekly}
}

// ParseCadence validates a user supplied cadence name.
func ParseCadence(value string) (Cadence, error) {
	c := Cadence(strings.ToLower(strings.TrimSpace(value)))
	switch c {
	case CadenceImmediate, CadenceDaily, CadenceWeekly:
		return c, nil
	default:
		return "", fmt.Errorf("unknown cadence %q", value)
	}
}

// Subscription links a user to a podcast. Identity is (Username, PodcastID).
type Subscription struct {
	ID           int64
	Username     string
	ChatID       string
	PodcastID    int64
	PodcastTitle string
	Active       bool
	Cadence      Cadence
	SubscribedAt time.Time
	UpdatedAt    time.Time
}

// Recipient returns the delivery identity for the subscriber.
func (s Subscription) Recipient() Recipient {
	return Recipient{Username: s.Username, ChatID: s.ChatID}
}

// Recipient addresses a message to a Telegram user.
type Recipient struct {
	Username string
	ChatID   string
}

// Address prefers the numeric chat id and falls back to @username.
func (r Recipient) Address() string {
	if r.ChatID != "" {
		return r.ChatID
	}
	if strings.HasPrefix(r.Username, "@") {
		return r.Username
	}
	return "@" + r.Username
}
