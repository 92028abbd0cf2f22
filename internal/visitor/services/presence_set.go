package services

import (
	"sync"
)

// PresenceSet is the in-memory cache of client keys believed online. It is
// conservative: readers use it for fast approximate answers only, and it is
// rebuilt from storage at startup, on every snapshot, and after each sweep.
type PresenceSet struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewPresenceSet creates an empty presence set
func NewPresenceSet() *PresenceSet {
	return &PresenceSet{keys: make(map[string]struct{})}
}

// Add records a key as online
func (p *PresenceSet) Add(key string) {
	p.mu.Lock()
	p.keys[key] = struct{}{}
	p.mu.Unlock()
}

// Remove forgets a key
func (p *PresenceSet) Remove(keys ...string) {
	p.mu.Lock()
	for _, key := range keys {
		delete(p.keys, key)
	}
	p.mu.Unlock()
}

// Contains reports whether a key is believed online
func (p *PresenceSet) Contains(key string) bool {
	p.mu.RLock()
	_, ok := p.keys[key]
	p.mu.RUnlock()
	return ok
}

// Len returns the approximate online count
func (p *PresenceSet) Len() int {
	p.mu.RLock()
	n := len(p.keys)
	p.mu.RUnlock()
	return n
}

// Replace swaps the whole set for the keys read back from storage
func (p *PresenceSet) Replace(keys []string) {
	next := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		next[key] = struct{}{}
	}
	p.mu.Lock()
	p.keys = next
	p.mu.Unlock()
}
