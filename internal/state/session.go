// Package state provides the scoped key-value store list instances persist
// their filter, selection and records in.
package state

import (
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Store is a key-value store scoped to one list instance.
type Store interface {
	// Load returns the value saved under key, or def when nothing is saved.
	Load(key string, def any) any
	// Save stores v under key.
	Save(key string, v any)
	// Clear drops every key of the scope.
	Clear()
}

// Session holds the scopes of one UI session. Scopes survive list instances
// being rebuilt within the session and are identified by name.
// Thread-safe for concurrent access.
type Session struct {
	id     ulid.ULID
	scopes map[string]map[string]any
	mu     sync.RWMutex
}

// NewSession creates an empty session with a fresh identifier.
func NewSession() *Session {
	return &Session{
		id:     ulid.Make(),
		scopes: make(map[string]map[string]any),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id.String()
}

// Scope returns the store for name. Calling Scope twice with the same name
// returns views of the same data.
func (s *Session) Scope(name string) Store {
	return &scope{session: s, name: name}
}

// Scopes returns the names of scopes currently holding data, sorted.
func (s *Session) Scopes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.scopes))
	for name := range s.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of keys saved in the named scope.
func (s *Session) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scopes[name])
}

type scope struct {
	session *Session
	name    string
}

func (sc *scope) Load(key string, def any) any {
	sc.session.mu.RLock()
	defer sc.session.mu.RUnlock()

	if v, ok := sc.session.scopes[sc.name][key]; ok {
		return v
	}
	return def
}

func (sc *scope) Save(key string, v any) {
	sc.session.mu.Lock()
	defer sc.session.mu.Unlock()

	m, ok := sc.session.scopes[sc.name]
	if !ok {
		m = make(map[string]any)
		sc.session.scopes[sc.name] = m
	}
	m[key] = v
}

func (sc *scope) Clear() {
	sc.session.mu.Lock()
	defer sc.session.mu.Unlock()

	delete(sc.session.scopes, sc.name)
}
