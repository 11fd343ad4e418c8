package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Store. Transactions are serialized against each
// other and stage their writes until fn returns successfully.
type Memory struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	tables map[string]*table
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory { return &Memory{tables: map[string]*table{}} }

func (m *Memory) tableLocked(collection string) *table {
	t, ok := m.tables[collection]
	if !ok {
		t = &table{}
		m.tables[collection] = t
	}
	return t
}

// lookup returns the named table without creating it; callers hold mu for
// reading.
func (m *Memory) lookup(collection string) *table {
	if t, ok := m.tables[collection]; ok {
		return t
	}
	return &table{}
}

func (m *Memory) Get(_ context.Context, collection, id string, out any) error {
	m.mu.RLock()
	d, ok := m.lookup(collection).get(id)
	m.mu.RUnlock()
	if !ok {
		return notFound(collection, id)
	}
	return fromDocument(d, out)
}

func (m *Memory) List(_ context.Context, collection string, filter Filter, out any) error {
	m.mu.RLock()
	ds := m.lookup(collection).list(filter)
	m.mu.RUnlock()
	return fromDocuments(ds, out)
}

func (m *Memory) Put(_ context.Context, collection, id string, doc any) error {
	d, err := toDocument(id, doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.tableLocked(collection).put(d)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Merge(_ context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	m.tableLocked(collection).merge(id, fields)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	ok := m.tableLocked(collection).remove(id)
	m.mu.Unlock()
	if !ok {
		return notFound(collection, id)
	}
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// RunTransaction executes fn and applies its writes only when fn succeeds.
// Writes are recorded per document and replayed onto the live tables at
// commit, so writes made outside the transaction meanwhile are kept.
func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &memoryTx{m: m}
	if err := fn(ctx, ordered(tx)); err != nil {
		return err
	}
	m.mu.Lock()
	for _, w := range tx.writes {
		t := m.tableLocked(w.collection)
		if w.doc != nil {
			t.put(w.doc)
		} else {
			t.merge(w.id, w.fields)
		}
	}
	m.mu.Unlock()
	return nil
}

// stagedWrite is one Put (doc set) or Merge (fields set) awaiting commit.
type stagedWrite struct {
	collection string
	id         string
	doc        document
	fields     map[string]any
}

type memoryTx struct {
	m      *Memory
	writes []stagedWrite
}

// Get reads the live table. Reads precede writes inside a transaction, so
// nothing staged can be visible yet.
func (tx *memoryTx) Get(ctx context.Context, collection, id string, out any) error {
	return tx.m.Get(ctx, collection, id, out)
}

func (tx *memoryTx) Put(_ context.Context, collection, id string, doc any) error {
	d, err := toDocument(id, doc)
	if err != nil {
		return err
	}
	tx.writes = append(tx.writes, stagedWrite{collection: collection, id: id, doc: d})
	return nil
}

func (tx *memoryTx) Merge(_ context.Context, collection, id string, fields map[string]any) error {
	f := make(map[string]any, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	tx.writes = append(tx.writes, stagedWrite{collection: collection, id: id, fields: f})
	return nil
}
