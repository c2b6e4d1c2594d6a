package durable

import "sync"

// Memory is an in-memory durable backend.
// Values outlive every Store handle opened on it, which makes it a stand-in
// for flash in simulations.
type Memory struct {
	mu         sync.RWMutex
	namespaces map[string]map[string][]byte
	writes     int
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{namespaces: make(map[string]map[string][]byte)}
}

// Open returns a handle on namespace.
func (m *Memory) Open(namespace string) (Store, error) {
	if err := validName(namespace); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.namespaces[namespace]; !ok {
		m.namespaces[namespace] = make(map[string][]byte)
	}
	return &memoryStore{backend: m, namespace: namespace}, nil
}

// Writes returns the number of successful Put calls, a proxy for flash wear.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Erase removes every namespace.
func (m *Memory) Erase() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.namespaces = make(map[string]map[string][]byte)
}

type memoryStore struct {
	backend   *Memory
	namespace string
	closed    bool
}

func (s *memoryStore) Exists(key string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()

	_, ok := s.backend.namespaces[s.namespace][key]
	return ok, nil
}

func (s *memoryStore) Get(key string) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()

	v, ok := s.backend.namespaces[s.namespace][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *memoryStore) Put(key string, value []byte) error {
	if s.closed {
		return ErrClosed
	}
	if err := validName(key); err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	ns, ok := s.backend.namespaces[s.namespace]
	if !ok {
		// Erased while open.
		ns = make(map[string][]byte)
		s.backend.namespaces[s.namespace] = ns
	}
	ns[key] = append([]byte(nil), value...)
	s.backend.writes++
	return nil
}

func (s *memoryStore) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ Opener = (*Memory)(nil)
	_ Store  = (*memoryStore)(nil)
)
