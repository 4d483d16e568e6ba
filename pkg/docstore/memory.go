package docstore

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Gateway. It is used for offline mode and tests, and can be told to
// fail so callers can exercise their error paths.
type Memory struct {
	mu       sync.RWMutex
	data     map[Kind]map[string]Document
	failWith map[Kind]error
	down     bool
	calls    map[Action]int
}

func NewMemory() *Memory {
	return &Memory{
		data:     make(map[Kind]map[string]Document),
		failWith: make(map[Kind]error),
		calls:    make(map[Action]int),
	}
}

// SetDown makes every call fail with StoreUnavailable until cleared.
func (m *Memory) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

// FailKind makes calls on one collection return err. A nil err clears it.
func (m *Memory) FailKind(kind Kind, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failWith, kind)
		return
	}
	m.failWith[kind] = err
}

// Calls returns how many times an action was invoked.
func (m *Memory) Calls(action Action) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[action]
}

func (m *Memory) check(action Action, kind Kind) error {
	m.calls[action]++
	if m.down {
		return unavailable(action, kind, 0, errMemoryDown)
	}
	if err, ok := m.failWith[kind]; ok {
		return err
	}
	return nil
}

func (m *Memory) List(_ context.Context, kind Kind, filter Filter) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ActionFind, kind); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(m.data[kind]))
	for id := range m.data[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		doc := m.data[kind][id]
		if filter.Matches(doc) {
			docs = append(docs, clone(doc))
		}
	}
	return docs, nil
}

func (m *Memory) Upsert(_ context.Context, kind Kind, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ActionUpdateOne, kind); err != nil {
		return err
	}

	id := doc.ID()
	if id == "" {
		return rejected(ActionUpdateOne, kind, 0, "missing unique id", "every document must carry a string id")
	}
	if m.data[kind] == nil {
		m.data[kind] = make(map[string]Document)
	}
	stored, ok := m.data[kind][id]
	if !ok {
		stored = Document{}
	}
	for k, v := range clone(doc) {
		stored[k] = v
	}
	m.data[kind][id] = stored
	return nil
}

func (m *Memory) DeleteOne(_ context.Context, kind Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ActionDeleteOne, kind); err != nil {
		return err
	}
	delete(m.data[kind], id)
	return nil
}

func (m *Memory) ClearAll(_ context.Context, kind Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ActionDeleteMany, kind); err != nil {
		return err
	}
	delete(m.data, kind)
	return nil
}

func (m *Memory) Ping(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[ActionPing]++
	return !m.down
}

// Count returns the number of documents in a collection.
func (m *Memory) Count(kind Kind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[kind])
}

type memoryErr string

func (e memoryErr) Error() string { return string(e) }

const errMemoryDown = memoryErr("memory store is marked down")
