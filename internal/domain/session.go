// Package domain contains core domain types for the RecThink client.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultModel is the model requested when none is configured.
const DefaultModel = "mistralai/mistral-small-3.1-24b-instruct:free"

// DefaultAlternativesPerRound is the number of candidate drafts per round.
const DefaultAlternativesPerRound = 3

// RoundPolicy selects how many thinking rounds the backend performs.
// The zero value is the "auto" policy: the backend decides.
type RoundPolicy struct {
	rounds int
}

// RoundsAuto lets the backend decide the number of rounds.
var RoundsAuto = RoundPolicy{}

// FixedRounds returns a policy requesting exactly n rounds.
func FixedRounds(n int) (RoundPolicy, error) {
	if n < 1 {
		return RoundPolicy{}, fmt.Errorf("%w: thinking rounds must be >= 1, got %d", ErrValidation, n)
	}
	return RoundPolicy{rounds: n}, nil
}

// ParseRoundPolicy accepts "auto" (case-insensitive) or a positive integer.
func ParseRoundPolicy(s string) (RoundPolicy, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "auto") {
		return RoundsAuto, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return RoundPolicy{}, fmt.Errorf("%w: thinking rounds must be \"auto\" or an integer, got %q", ErrValidation, s)
	}
	return FixedRounds(n)
}

// IsAuto reports whether the backend chooses the round count.
func (p RoundPolicy) IsAuto() bool {
	return p.rounds == 0
}

// Rounds returns the fixed round count, or false for the auto policy.
func (p RoundPolicy) Rounds() (int, bool) {
	if p.IsAuto() {
		return 0, false
	}
	return p.rounds, true
}

func (p RoundPolicy) String() string {
	if p.IsAuto() {
		return "auto"
	}
	return strconv.Itoa(p.rounds)
}

// MarshalJSON encodes auto as the string "auto" and fixed policies as numbers.
func (p RoundPolicy) MarshalJSON() ([]byte, error) {
	if p.IsAuto() {
		return []byte(`"auto"`), nil
	}
	return []byte(strconv.Itoa(p.rounds)), nil
}

// UnmarshalJSON accepts "auto", a numeric string, or a number.
func (p *RoundPolicy) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var parsed RoundPolicy
	var err error
	switch v := raw.(type) {
	case nil:
		parsed = RoundsAuto
	case string:
		parsed, err = ParseRoundPolicy(v)
	case float64:
		if v != float64(int(v)) {
			return fmt.Errorf("%w: thinking rounds must be an integer, got %v", ErrValidation, v)
		}
		parsed, err = FixedRounds(int(v))
	default:
		return fmt.Errorf("%w: unsupported thinking rounds value %s", ErrValidation, string(data))
	}
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Settings is the caller-facing configuration surface of a conversation.
type Settings struct {
	Model                string      `json:"model"`
	ThinkingRounds       RoundPolicy `json:"thinking_rounds"`
	AlternativesPerRound int         `json:"alternatives_per_round"`
	ShowThinkingProcess  bool        `json:"show_thinking_process"`
}

// DefaultSettings returns the settings used before any caller override.
func DefaultSettings() Settings {
	return Settings{
		Model:                DefaultModel,
		ThinkingRounds:       RoundsAuto,
		AlternativesPerRound: DefaultAlternativesPerRound,
	}
}

// Validate checks the structural constraints on settings.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Model) == "" {
		return fmt.Errorf("%w: model cannot be empty", ErrValidation)
	}
	if s.AlternativesPerRound < 1 {
		return fmt.Errorf("%w: alternatives per round must be >= 1, got %d", ErrValidation, s.AlternativesPerRound)
	}
	return nil
}

// Session is a backend conversation created by a successful initialize call.
type Session struct {
	ID        string    `json:"session_id"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSummary is one entry of the backend's session listing.
type SessionSummary struct {
	ID           string `json:"session_id"`
	MessageCount int    `json:"message_count"`
	CreatedAt    string `json:"created_at,omitempty"`
}
