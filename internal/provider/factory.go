package provider

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agentd/internal/config"
	"agentd/internal/domain"
)

// Constructor creates a provider from a backend config entry.
type Constructor func(bc config.BackendConfig, logger *slog.Logger) domain.DecisionProvider

// Factory creates and caches decision providers from config.
type Factory struct {
	cfg          *config.Config
	logger       *slog.Logger
	constructors map[string]Constructor
	cache        map[string]domain.DecisionProvider
	mu           sync.RWMutex
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		constructors: make(map[string]Constructor),
		cache:        make(map[string]domain.DecisionProvider),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds (or replaces) a backend constructor by name.
func (f *Factory) RegisterConstructor(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

func (f *Factory) registerDefaults() {
	openAICompatible := func(bc config.BackendConfig, logger *slog.Logger) domain.DecisionProvider {
		return NewOpenAI(OpenAIConfig{
			APIKey:  bc.APIKey,
			APIBase: bc.APIBase,
			Model:   bc.Model,
			Timeout: time.Duration(bc.TimeoutSeconds) * time.Second,
			Logger:  logger,
		})
	}
	f.constructors["openai"] = openAICompatible
	f.constructors["ollama"] = openAICompatible
}

// Get returns the provider for a backend name, constructing it on first use.
func (f *Factory) Get(name string) (domain.DecisionProvider, error) {
	f.mu.RLock()
	if p, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return p, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.cache[name]; ok {
		return p, nil
	}

	bc, ok := f.cfg.Backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", name)
	}
	if !bc.Enabled {
		return nil, fmt.Errorf("backend %s is disabled", name)
	}
	ctor, ok := f.constructors[name]
	if !ok {
		return nil, fmt.Errorf("no constructor for backend: %s", name)
	}

	p := ctor(bc, f.logger)
	f.cache[name] = p
	return p, nil
}

// Default returns the provider selected by provider.default.
func (f *Factory) Default() (domain.DecisionProvider, error) {
	return f.Get(f.cfg.Provider.Default)
}
