// Package email sends escalation emails through one of several providers.
// A Registry picks the primary provider and falls back to the others in order.
package email

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
)

// ErrNoProvider is returned when no registered provider is configured
var ErrNoProvider = errors.New("no configured email provider available")

// EmailRequest represents an email to be sent
type EmailRequest struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Validate checks the fields every provider needs
func (r *EmailRequest) Validate() error {
	if len(r.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}
	if r.From == "" {
		return fmt.Errorf("sender address is required")
	}
	if r.Text == "" && r.HTML == "" {
		return fmt.Errorf("email body is required")
	}
	return nil
}

// Provider is implemented by every email backend
type Provider interface {
	// Name returns the provider name used in configuration ("smtp", "resend", "ses")
	Name() string
	Send(ctx context.Context, req *EmailRequest) error
	IsConfigured() bool
}

// Registry manages email providers with fallback support
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	primary   string
	fallback  []string
	from      string
}

// NewRegistry creates an empty registry; from is used when a request has no sender
func NewRegistry(from string) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		from:      from,
	}
}

// Register adds a provider, replacing any provider with the same name
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	log.Printf("Email: registered provider %s (configured=%v)", p.Name(), p.IsConfigured())
}

// SetPrimary selects the provider tried first
func (r *Registry) SetPrimary(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("provider %q not registered", name)
	}
	r.primary = name
	return nil
}

// SetFallback sets the providers tried, in order, when the primary fails
func (r *Registry) SetFallback(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, ok := r.providers[name]; !ok {
			return fmt.Errorf("provider %q not registered", name)
		}
	}
	r.fallback = names
	return nil
}

// Get returns a provider by name
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// List returns the registered provider names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsConfigured reports whether at least one provider can send
func (r *Registry) IsConfigured() bool {
	_, err := r.candidates()
	return err == nil
}

// candidates returns configured providers in the order they should be tried:
// primary, then fallbacks, then any other configured provider by name
func (r *Registry) candidates() ([]Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var ordered []Provider
	add := func(name string) {
		if seen[name] {
			return
		}
		if p, ok := r.providers[name]; ok && p.IsConfigured() {
			seen[name] = true
			ordered = append(ordered, p)
		}
	}

	if r.primary != "" {
		add(r.primary)
	}
	for _, name := range r.fallback {
		add(name)
	}
	rest := make([]string, 0, len(r.providers))
	for name := range r.providers {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	for _, name := range rest {
		add(name)
	}

	if len(ordered) == 0 {
		return nil, ErrNoProvider
	}
	return ordered, nil
}

// Send delivers req with the first provider that succeeds.
// The error of the first attempted provider is returned when all fail.
func (r *Registry) Send(ctx context.Context, req *EmailRequest) error {
	if req.From == "" {
		req.From = r.from
	}
	if err := req.Validate(); err != nil {
		return err
	}

	providers, err := r.candidates()
	if err != nil {
		return err
	}

	var firstErr, lastErr error
	for i, p := range providers {
		if i > 0 {
			log.Printf("Warning: email provider %s failed, trying %s: %v", providers[i-1].Name(), p.Name(), lastErr)
		}
		lastErr = p.Send(ctx, req)
		if lastErr == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = lastErr
		}
		if ctx.Err() != nil {
			break
		}
	}
	return firstErr
}

// SendTo adapts the registry to the simple transport signature used by escalation
func (r *Registry) SendTo(ctx context.Context, to, subject, htmlBody string) error {
	return r.Send(ctx, &EmailRequest{
		To:      []string{to},
		Subject: subject,
		HTML:    htmlBody,
		Text:    htmlToText(htmlBody),
	})
}
