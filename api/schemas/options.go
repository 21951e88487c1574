package schemas

import (
	"fmt"
	"time"
)

// Default interaction engine options.
const (
	DefaultInteractionDelayMs = 300
	DefaultMaxInteractions    = 10
	DefaultTimeoutMs          = 30000
)

// EngineOptions is the flat options structure consumed by the interaction engine.
type EngineOptions struct {
	InteractionDelay int `mapstructure:"interaction_delay" yaml:"interaction_delay" json:"interaction_delay"` // milliseconds
	MaxInteractions  int `mapstructure:"max_interactions" yaml:"max_interactions" json:"max_interactions"`
	Timeout          int `mapstructure:"timeout" yaml:"timeout" json:"timeout"` // milliseconds
}

// DefaultEngineOptions returns the stock options.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		InteractionDelay: DefaultInteractionDelayMs,
		MaxInteractions:  DefaultMaxInteractions,
		Timeout:          DefaultTimeoutMs,
	}
}

// Validate rejects negative values and a zero timeout.
func (o EngineOptions) Validate() error {
	if o.InteractionDelay < 0 {
		return fmt.Errorf("interaction_delay must not be negative, got %d", o.InteractionDelay)
	}
	if o.MaxInteractions < 0 {
		return fmt.Errorf("max_interactions must not be negative, got %d", o.MaxInteractions)
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive number of milliseconds, got %d", o.Timeout)
	}
	return nil
}

func (o EngineOptions) Delay() time.Duration {
	return time.Duration(o.InteractionDelay) * time.Millisecond
}

func (o EngineOptions) TimeoutDuration() time.Duration {
	return time.Duration(o.Timeout) * time.Millisecond
}
