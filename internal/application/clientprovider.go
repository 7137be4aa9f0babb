package application

import (
	"sync"

	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

// PRSourceProvider enables runtime hot-swap of the code host client used for
// GitHub syncs. It holds a mutex-protected driven.PRSource that may be nil
// when no token is configured.
type PRSourceProvider struct {
	mu     sync.RWMutex
	source driven.PRSource
}

// NewPRSourceProvider creates a provider with the given initial source.
// source may be nil if no credentials are available at startup.
func NewPRSourceProvider(source driven.PRSource) *PRSourceProvider {
	return &PRSourceProvider{source: source}
}

// Get returns the current source. Callers should check for nil.
func (p *PRSourceProvider) Get() driven.PRSource {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.source
}

// Replace swaps the current source. The next caller of Get receives the new value.
func (p *PRSourceProvider) Replace(source driven.PRSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = source
}

// HasSource returns true if a non-nil source is currently held.
func (p *PRSourceProvider) HasSource() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.source != nil
}
