package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/michaelbrown/augment/internal/llm"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
)

// Registry owns an ordered set of providers and routes tool names to them.
// The routing table is built once by Connect and is read-only afterwards.
type Registry struct {
	log       zerolog.Logger
	providers []Provider
	index     map[string]Provider
	defs      []llm.ToolDef
}

// NewRegistry creates a registry over providers in priority order.
func NewRegistry(log zerolog.Logger, providers ...Provider) *Registry {
	return &Registry{
		log:       log,
		providers: providers,
	}
}

// NewProviders builds an MCPProvider for every enabled server config.
func NewProviders(cfgs []ServerConfig, log zerolog.Logger) []Provider {
	var providers []Provider
	for _, cfg := range cfgs {
		if !cfg.Enabled {
			log.Debug().Str("provider", cfg.Name).Msg("tool server disabled, skipping")
			continue
		}
		providers = append(providers, NewMCPProvider(cfg, log))
	}
	return providers
}

// Add appends a provider with the lowest priority. It must be called before Connect.
func (r *Registry) Add(p Provider) {
	r.providers = append(r.providers, p)
}

// Providers returns the providers in priority order.
func (r *Registry) Providers() []Provider {
	return r.providers
}

// Connect connects every provider in order and builds the routing table.
// The first failure is returned; providers connected before it stay
// connected and are released by Close.
func (r *Registry) Connect(ctx context.Context) error {
	r.index = make(map[string]Provider)
	r.defs = nil

	for _, p := range r.providers {
		if err := p.Connect(ctx); err != nil {
			return err
		}

		for _, d := range p.Tools() {
			if isBlank(d.Name) {
				r.log.Warn().Str("provider", p.Name()).Msg("ignoring tool with empty name")
				continue
			}
			if owner, ok := r.index[d.Name]; ok {
				r.log.Warn().
					Str("tool", d.Name).
					Str("provider", p.Name()).
					Str("owner", owner.Name()).
					Msg("duplicate tool name, keeping first provider")
				continue
			}
			r.index[d.Name] = p
			r.defs = append(r.defs, toolDef(d))
		}
		r.log.Info().Str("provider", p.Name()).Int("tools", len(p.Tools())).Msg("tool provider connected")
	}
	return nil
}

func toolDef(d Descriptor) llm.ToolDef {
	params := map[string]any{"type": "object"}
	if len(d.InputSchema) > 0 {
		var schema map[string]any
		if err := json.Unmarshal(d.InputSchema, &schema); err == nil && schema != nil {
			params = schema
		}
	}
	return llm.ToolDef{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  params,
	}
}

// Tools returns the tool definitions advertised to the model, in provider
// order and then in each provider's listing order.
func (r *Registry) Tools() []llm.ToolDef {
	return r.defs
}

// Resolve returns the provider that owns name.
func (r *Registry) Resolve(name string) (Provider, bool) {
	p, ok := r.index[name]
	return p, ok
}

// Close closes every provider, including ones whose Connect failed. A failure
// or panic in one provider does not stop the rest; they are logged and
// returned as warnings.
func (r *Registry) Close(ctx context.Context) []error {
	var warnings []error
	for _, p := range r.providers {
		var err error
		var pc panics.Catcher
		pc.Try(func() { err = p.Close(ctx) })
		if recovered := pc.Recovered(); recovered != nil {
			err = fmt.Errorf("closing %s: %w", p.Name(), recovered.AsError())
		}
		if err != nil {
			r.log.Warn().Err(err).Str("provider", p.Name()).Msg("tool provider teardown failed")
			warnings = append(warnings, err)
		}
	}
	return warnings
}
