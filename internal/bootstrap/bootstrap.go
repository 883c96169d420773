// Package bootstrap assembles a ready-to-use Agent from configuration:
// profile resolution, backend client, tool providers and Init.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/michaelbrown/augment/internal/agent"
	"github.com/michaelbrown/augment/internal/config"
	"github.com/michaelbrown/augment/internal/llm"
	"github.com/michaelbrown/augment/internal/logging"
	"github.com/michaelbrown/augment/internal/tools"
)

// Options are per-agent overrides. Empty fields fall back to the profile,
// then to the config file.
type Options struct {
	Profile      string
	Model        string
	SystemPrompt string
	ContextFile  string
	MaxCycles    *int
}

// Runtime is an initialized Agent plus the settings it was built with.
type Runtime struct {
	Agent   *agent.Agent
	Model   string
	Profile string
	Servers []tools.ServerConfig
}

// Builder creates a Runtime. The server takes one so tests can swap it.
type Builder func(ctx context.Context, opts Options) (*Runtime, error)

// NewBuilder returns a Builder bound to cfg.
func NewBuilder(cfg *config.Config, log zerolog.Logger) Builder {
	return func(ctx context.Context, opts Options) (*Runtime, error) {
		return Build(ctx, cfg, opts, log)
	}
}

type settings struct {
	profile      string
	model        string
	systemPrompt string
	seedContext  string
	maxCycles    int
	servers      []tools.ServerConfig
}

func resolve(cfg *config.Config, opts Options) (*settings, error) {
	s := &settings{
		model:        cfg.LLM.Model,
		systemPrompt: cfg.Agent.SystemPrompt,
		maxCycles:    cfg.Agent.MaxCycles,
	}

	var profile *agent.Profile
	if opts.Profile != "" {
		p, err := agent.FindProfile(cfg.Agent.ProfilesDir, opts.Profile)
		if err != nil {
			return nil, err
		}
		profile = p
		s.profile = p.Name
	}

	var serverNames []string
	if profile != nil {
		if profile.Model != "" {
			s.model = profile.Model
		}
		if profile.SystemPrompt != "" {
			s.systemPrompt = profile.SystemPrompt
		}
		if profile.MaxCycles != nil {
			s.maxCycles = *profile.MaxCycles
		}
		s.seedContext = profile.Context
		serverNames = profile.Servers
	}

	if opts.Model != "" {
		s.model = opts.Model
	}
	if opts.SystemPrompt != "" {
		s.systemPrompt = opts.SystemPrompt
	}
	if opts.MaxCycles != nil {
		s.maxCycles = *opts.MaxCycles
	}

	switch {
	case opts.ContextFile != "":
		data, err := os.ReadFile(opts.ContextFile)
		if err != nil {
			return nil, fmt.Errorf("reading context file: %w", err)
		}
		s.seedContext = string(data)
	case s.seedContext == "":
		text, err := cfg.SeedContext()
		if err != nil {
			return nil, err
		}
		s.seedContext = text
	}

	servers, err := cfg.Servers(serverNames)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", s.profile, err)
	}
	s.servers = servers

	return s, nil
}

// Build resolves settings, connects the tool servers and initializes the
// Agent. If Init fails, whatever did connect is closed before returning.
func Build(ctx context.Context, cfg *config.Config, opts Options, log zerolog.Logger) (*Runtime, error) {
	s, err := resolve(cfg, opts)
	if err != nil {
		return nil, err
	}

	client := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, s.model)
	providers := tools.NewProviders(s.servers, logging.Component(log, "provider"))
	registry := tools.NewRegistry(logging.Component(log, "registry"), providers...)

	a := agent.New(client, registry, s.maxCycles)
	a.SetSystemPrompt(s.systemPrompt)
	a.SetContext(s.seedContext)
	a.SetLogger(logging.Component(log, "agent"))

	if err := a.Init(ctx); err != nil {
		a.Close(context.WithoutCancel(ctx))
		return nil, err
	}

	return &Runtime{
		Agent:   a,
		Model:   s.model,
		Profile: s.profile,
		Servers: s.servers,
	}, nil
}
