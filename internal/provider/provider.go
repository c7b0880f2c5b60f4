// Package provider defines the vendor-agnostic Provider interface and a
// registry of provider factories (§4.7). Concrete adapters translate each
// vendor's wire protocol into the unified streamevent vocabulary.
package provider

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/tronrun/internal/ctxassembler"
	"github.com/xonecas/tronrun/internal/streamevent"
)

// ErrProviderNotFound is returned when a requested provider doesn't exist.
var ErrProviderNotFound = errors.New("provider not found")

// Model describes one model a provider can serve.
type Model struct {
	Name    string
	Family  string
	Context int
}

// Provider streams one turn's worth of events for a composed request.
type Provider interface {
	// Name returns the provider's identifier.
	Name() string

	// Stream sends a composed turn request and returns a channel of
	// unified stream events. The channel is closed after Done or Error.
	Stream(ctx context.Context, req ctxassembler.Request) (<-chan streamevent.Event, error)

	// ListModels returns the models this provider can serve.
	ListModels(ctx context.Context) ([]Model, error)

	// Close releases idle connections and other resources.
	Close() error
}

// Options holds provider generation settings.
type Options struct {
	Temperature float64
}

// Factory constructs a Provider bound to one model.
type Factory interface {
	Name() string
	Create(model string, opts Options) Provider
}

// Registry holds available provider factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// RegisterFactory adds f under name.
func (r *Registry) RegisterFactory(name string, f Factory) {
	r.factories[name] = f
}

// Create instantiates a Provider from the named factory.
func (r *Registry) Create(name, model string, opts Options) (Provider, error) {
	f, ok := r.factories[name]
	if !ok {
		log.Error().Str("name", name).Str("model", model).Msg("provider registry: factory not found")
		return nil, ErrProviderNotFound
	}
	return f.Create(model, opts), nil
}

// List returns every registered provider name.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// TaggedModel pairs a provider name with one of its models.
type TaggedModel struct {
	ProviderName string
	Model        Model
}

// ListAllModels concurrently fetches models from every registered provider.
// A single unavailable provider is logged and skipped rather than blocking
// the rest.
func (r *Registry) ListAllModels(ctx context.Context, opts Options) []TaggedModel {
	type result struct {
		name   string
		models []Model
	}
	ch := make(chan result, len(r.factories))
	for name := range r.factories {
		name := name
		go func() {
			prov := r.factories[name].Create("", opts)
			models, err := prov.ListModels(ctx)
			prov.Close()
			if err != nil {
				log.Warn().Str("provider", name).Err(err).Msg("ListAllModels: provider error")
				ch <- result{name: name}
				return
			}
			ch <- result{name: name, models: models}
		}()
	}
	var all []TaggedModel
	for range r.factories {
		res := <-ch
		for _, m := range res.models {
			all = append(all, TaggedModel{ProviderName: res.name, Model: m})
		}
	}
	return all
}
