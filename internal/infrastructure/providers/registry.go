package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
)

// Entry binds a canonical gateway name to its adapter and the free-text aliases
// payment methods may use for it.
type Entry struct {
	Name    string
	Adapter domain.ProviderAdapter
	Aliases []string
}

type alias struct {
	text string
	name string
}

// Registry is built once at startup and is read-only afterwards.
type Registry struct {
	adapters map[string]domain.ProviderAdapter
	aliases  []alias
}

func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{adapters: make(map[string]domain.ProviderAdapter, len(entries))}
	for _, e := range entries {
		name := Normalize(e.Name)
		if name == "" || e.Adapter == nil {
			return nil, fmt.Errorf("provider registry: entry %q is incomplete", e.Name)
		}
		if _, dup := r.adapters[name]; dup {
			return nil, fmt.Errorf("provider registry: duplicate provider %q", e.Name)
		}
		r.adapters[name] = e.Adapter
		r.aliases = append(r.aliases, alias{text: name, name: name})
		for _, a := range e.Aliases {
			if n := Normalize(a); n != "" {
				r.aliases = append(r.aliases, alias{text: n, name: name})
			}
		}
	}
	// longest alias first; registration order breaks ties
	sort.SliceStable(r.aliases, func(i, j int) bool {
		return len(r.aliases[i].text) > len(r.aliases[j].text)
	})
	return r, nil
}

// Normalize lowercases and strips separators so "Form-Kassa", "form_kassa" and "FORM KASSA" agree.
func Normalize(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_', '.', '\t':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(raw)))
}

// Resolve maps a free-text provider name to an adapter by substring match against the aliases.
func (r *Registry) Resolve(raw string) (domain.ProviderAdapter, error) {
	n := Normalize(raw)
	if n != "" {
		for _, a := range r.aliases {
			if strings.Contains(n, a.text) {
				return r.adapters[a.name], nil
			}
		}
	}
	return nil, domain.NewError(domain.KindUnsupportedProvider, "no adapter for provider", "provider", raw)
}

// Adapter looks up a canonical name exactly.
func (r *Registry) Adapter(name string) (domain.ProviderAdapter, error) {
	if a, ok := r.adapters[Normalize(name)]; ok {
		return a, nil
	}
	return nil, domain.NewError(domain.KindUnsupportedProvider, "unknown provider", "provider", name)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
