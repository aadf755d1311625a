package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Mode selects how a source is driven.
type Mode string

const (
	// ModePoll forces interval polling.
	ModePoll Mode = "poll"
	// ModeRealtime forces a persistent connection.
	ModeRealtime Mode = "realtime"
	// ModeAuto picks realtime when the adapter supports it, polling otherwise.
	ModeAuto Mode = "auto"
)

// DefaultPollInterval applies when a source does not set one.
const DefaultPollInterval = 5 * time.Minute

// DefaultDebounceWindow applies when debounce is enabled without an
// explicit window.
const DefaultDebounceWindow = 5000 * time.Millisecond

// Source represents one configured external feed.
// Sources are defined in the sources file and hot-reloaded while the
// engine runs.
type Source struct {
	// ID is the unique identifier for the source.
	ID string `json:"id"`

	// Type identifies the plugin that ingests this source (e.g. "rss").
	Type string `json:"type"`

	// Project is the destination project for created tasks.
	Project string `json:"project"`

	// Mode is poll, realtime or auto. Empty means auto.
	Mode Mode `json:"mode,omitempty"`

	// PollIntervalSeconds overrides the default poll interval.
	PollIntervalSeconds int `json:"pollInterval,omitempty"`

	// Debounce controls burst collapsing. false disables, true uses the
	// default window, a number is a window in milliseconds.
	Debounce Debounce `json:"debounceMs,omitempty"`

	// Filter holds per-item conditions; empty passes everything.
	Filter []FilterCondition `json:"filter,omitempty"`

	// TrackReplies registers created tasks for two-way reply routing.
	TrackReplies bool `json:"trackReplies,omitempty"`

	// Automation names a downstream automation directive to trigger
	// after task creation.
	Automation string `json:"automation,omitempty"`

	// Enabled gates the source. Disabled sources keep their state but
	// are neither polled nor connected.
	Enabled bool `json:"enabled"`

	// Config contains plugin-specific configuration keyed by the
	// plugin's declared config fields.
	Config map[string]string `json:"config,omitempty"`

	// StaleAfterSeconds flags a realtime connection stale when no
	// message arrives within this window. Unset uses the engine
	// default; an explicit 0 disables the check.
	StaleAfterSeconds *int `json:"staleAfterSec,omitempty"`
}

// UnmarshalJSON defaults Enabled to true when the key is absent, so a
// source definition only needs "enabled" to turn a source off.
func (s *Source) UnmarshalJSON(data []byte) error {
	type plain Source
	aux := struct {
		*plain
		Enabled *bool `json:"enabled"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Enabled = aux.Enabled == nil || *aux.Enabled
	return nil
}

// StaleThreshold returns the effective staleness window, or 0 when the
// check is disabled for this source.
func (s *Source) StaleThreshold(def time.Duration) time.Duration {
	if s.StaleAfterSeconds == nil {
		return def
	}
	if *s.StaleAfterSeconds <= 0 {
		return 0
	}
	return time.Duration(*s.StaleAfterSeconds) * time.Second
}

// PollInterval returns the effective poll interval.
func (s *Source) PollInterval() time.Duration {
	if s.PollIntervalSeconds <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// ResolveMode returns the effective mode given adapter realtime support.
func (s *Source) ResolveMode(supportsRealtime bool) Mode {
	switch s.Mode {
	case ModePoll:
		return ModePoll
	case ModeRealtime:
		return ModeRealtime
	default:
		if supportsRealtime {
			return ModeRealtime
		}
		return ModePoll
	}
}

// Debounce is a tri-state setting: disabled, enabled with the default
// window, or enabled with an explicit window in milliseconds. In JSON it
// is false, true or a number.
type Debounce struct {
	Enabled bool
	Window  time.Duration
}

// EffectiveWindow returns the debounce window, substituting the default
// when enabled without an explicit value.
func (d Debounce) EffectiveWindow() time.Duration {
	if !d.Enabled {
		return 0
	}
	if d.Window <= 0 {
		return DefaultDebounceWindow
	}
	return d.Window
}

// UnmarshalJSON accepts false, true or a millisecond count.
func (d *Debounce) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*d = Debounce{Enabled: b}
		return nil
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err == nil {
		if ms <= 0 {
			*d = Debounce{}
			return nil
		}
		*d = Debounce{Enabled: true, Window: time.Duration(ms) * time.Millisecond}
		return nil
	}
	return fmt.Errorf("%w: debounceMs must be a boolean or a number", ErrInvalidInput)
}

// MarshalJSON writes the same tri-state form back out.
func (d Debounce) MarshalJSON() ([]byte, error) {
	if !d.Enabled {
		return json.Marshal(false)
	}
	if d.Window <= 0 {
		return json.Marshal(true)
	}
	return json.Marshal(d.Window.Milliseconds())
}

// SourceFile is the on-disk shape of the sources configuration.
type SourceFile struct {
	Version int      `json:"version"`
	Sources []Source `json:"sources"`
}
