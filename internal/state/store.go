package state

import (
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the reachability of an upstream origin.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusUnknown   HealthStatus = "unknown"
)

// Upstream is a proxy rule's target origin together with its last probe result.
type Upstream struct {
	Name            string       `json:"name"`
	Prefix          string       `json:"prefix"`
	Target          string       `json:"target"`
	Rewrite         bool         `json:"rewrite"`
	HealthURL       string       `json:"healthUrl"`
	Status          HealthStatus `json:"status"`
	HTTPCode        *int         `json:"httpCode"`
	ResponseTimeMs  *int64       `json:"responseTimeMs"`
	LastChecked     *time.Time   `json:"lastChecked"`
	LastStateChange *time.Time   `json:"lastStateChange"`
	ErrorSnippet    *string      `json:"errorSnippet"`
}

// EventType identifies the kind of state mutation.
type EventType int

const (
	EventAdded EventType = iota
	EventRemoved
	EventUpdated
	EventConfigReloaded
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	case EventUpdated:
		return "updated"
	case EventConfigReloaded:
		return "configReloaded"
	default:
		return "unknown"
	}
}

// Event represents a state mutation notification.
type Event struct {
	Type     EventType
	Upstream Upstream // Populated for Added/Updated
	Name     string   // Populated for Removed
	Profile  string   // Populated for ConfigReloaded
}

// Store is a concurrency-safe in-memory store of upstreams keyed by rule name.
type Store struct {
	mu           sync.RWMutex
	upstreams    map[string]Upstream
	subs         map[chan Event]struct{}
	configErrors []string
	profile      string
	lastReload   time.Time
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{
		upstreams: make(map[string]Upstream),
		subs:      make(map[chan Event]struct{}),
	}
}

// Subscribe returns a read-only channel that receives events for every state mutation.
// Events are dropped for subscribers whose buffer is full.
func (s *Store) Subscribe() <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Event, 128)
	s.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (s *Store) Unsubscribe(ch <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for existing := range s.subs {
		if (<-chan Event)(existing) == ch {
			delete(s.subs, existing)
			close(existing)
			return
		}
	}
}

// publish fans an event out to every subscriber. Must be called with mu held.
func (s *Store) publish(event Event) {
	for ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// AddOrUpdate inserts or replaces an upstream.
// It sends EventAdded for new upstreams and EventUpdated for existing ones.
func (s *Store) AddOrUpdate(u Upstream) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.upstreams[u.Name]
	s.upstreams[u.Name] = u.DeepCopy()

	eventType := EventAdded
	if exists {
		eventType = EventUpdated
	}
	s.publish(Event{Type: eventType, Upstream: u.DeepCopy()})
}

// Remove deletes an upstream and sends EventRemoved.
func (s *Store) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.upstreams[name]; !exists {
		return
	}
	delete(s.upstreams, name)
	s.publish(Event{Type: EventRemoved, Name: name})
}

// Get retrieves a single upstream by name.
func (s *Store) Get(name string) (Upstream, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.upstreams[name]
	if !ok {
		return Upstream{}, false
	}
	return u.DeepCopy(), true
}

// All returns a snapshot of all upstreams sorted by name.
func (s *Store) All() []Upstream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Upstream, 0, len(s.upstreams))
	for _, u := range s.upstreams {
		result = append(result, u.DeepCopy())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Update performs a read-modify-write on a single upstream while the store is locked.
// If the upstream does not exist, fn is not called.
func (s *Store) Update(name string, fn func(*Upstream)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.upstreams[name]
	if !ok {
		return
	}
	fn(&u)
	s.upstreams[name] = u
	s.publish(Event{Type: EventUpdated, Upstream: u.DeepCopy()})
}

// SetConfigErrors replaces the current config validation errors.
func (s *Store) SetConfigErrors(errs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configErrors = append([]string(nil), errs...)
}

// ConfigErrors returns the config validation errors from the last load.
func (s *Store) ConfigErrors() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.configErrors...)
}

// MarkReloaded records a successful config reload and notifies subscribers.
func (s *Store) MarkReloaded(profile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
	s.lastReload = time.Now()
	s.publish(Event{Type: EventConfigReloaded, Profile: profile})
}

// Profile returns the active profile name. Empty when explicit rules are in use.
func (s *Store) Profile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// SetProfile records the active profile without emitting an event.
func (s *Store) SetProfile(profile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
}

// LastReload returns the time of the last config reload, zero if none.
func (s *Store) LastReload() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReload
}

// DeepCopy creates a complete copy of the Upstream, including pointer fields.
func (u Upstream) DeepCopy() Upstream {
	cp := u
	if u.HTTPCode != nil {
		val := *u.HTTPCode
		cp.HTTPCode = &val
	}
	if u.ResponseTimeMs != nil {
		val := *u.ResponseTimeMs
		cp.ResponseTimeMs = &val
	}
	if u.LastChecked != nil {
		val := *u.LastChecked
		cp.LastChecked = &val
	}
	if u.LastStateChange != nil {
		val := *u.LastStateChange
		cp.LastStateChange = &val
	}
	if u.ErrorSnippet != nil {
		val := *u.ErrorSnippet
		cp.ErrorSnippet = &val
	}
	return cp
}
