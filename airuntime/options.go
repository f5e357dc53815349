// Package airuntime is the runtime organism: it owns library lifecycle,
// contexts, sessions, and the generate round trip, composing the backend
// engine, history store, telemetry aggregator, and shutdown registry.
package airuntime

import (
	"libai/backend"
	"libai/core"
)

// GenerationOptions carries optional per-session or per-call generation
// parameters. A nil struct or nil field means "use the next default down":
// call options override session options override library defaults.
type GenerationOptions struct {
	// Temperature for sampling; nil means inherit
	Temperature *float64

	// MaxTokens bounds the reply length; nil means inherit
	MaxTokens *int

	// SystemPrompt is the conversation instruction; nil means inherit
	SystemPrompt *string
}

// clone returns an independent copy so a caller mutating their options
// struct after the call cannot affect stored session defaults.
func (o *GenerationOptions) clone() *GenerationOptions {
	if o == nil {
		return nil
	}
	c := &GenerationOptions{}
	if o.Temperature != nil {
		v := *o.Temperature
		c.Temperature = &v
	}
	if o.MaxTokens != nil {
		v := *o.MaxTokens
		c.MaxTokens = &v
	}
	if o.SystemPrompt != nil {
		v := *o.SystemPrompt
		c.SystemPrompt = &v
	}
	return c
}

// resolveOptions merges the three option layers into the flat struct an
// engine receives. Precedence per field: call > session > config defaults.
func resolveOptions(cfg core.Config, session, call *GenerationOptions) backend.ResolvedOptions {
	resolved := backend.ResolvedOptions{
		Temperature:  cfg.DefaultTemperature,
		MaxTokens:    cfg.DefaultMaxTokens,
		SystemPrompt: cfg.DefaultSystemPrompt,
	}

	for _, layer := range []*GenerationOptions{session, call} {
		if layer == nil {
			continue
		}
		if layer.Temperature != nil {
			resolved.Temperature = *layer.Temperature
		}
		if layer.MaxTokens != nil {
			resolved.MaxTokens = *layer.MaxTokens
		}
		if layer.SystemPrompt != nil {
			resolved.SystemPrompt = *layer.SystemPrompt
		}
	}

	return resolved
}
