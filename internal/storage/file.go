package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File is the JSON-file mirror: one <collection>.json array per collection
// under dir. The mutex only serializes writers inside this process; across
// processes the last writer wins.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile returns a file store rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(collection string) string {
	return filepath.Join(f.dir, collection+".json")
}

func (f *File) load(collection string) (*table, error) {
	b, err := os.ReadFile(f.path(collection))
	if errors.Is(err, os.ErrNotExist) {
		return &table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", collection, err)
	}
	t := &table{}
	if len(b) == 0 {
		return t, nil
	}
	if err := json.Unmarshal(b, &t.docs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", collection, err)
	}
	return t, nil
}

func (f *File) save(collection string, t *table) error {
	docs := t.docs
	if docs == nil {
		docs = []document{}
	}
	b, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path(collection) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", collection, err)
	}
	return os.Rename(tmp, f.path(collection))
}

func (f *File) Get(_ context.Context, collection, id string, out any) error {
	f.mu.Lock()
	t, err := f.load(collection)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	d, ok := t.get(id)
	if !ok {
		return notFound(collection, id)
	}
	return fromDocument(d, out)
}

func (f *File) List(_ context.Context, collection string, filter Filter, out any) error {
	f.mu.Lock()
	t, err := f.load(collection)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return fromDocuments(t.list(filter), out)
}

func (f *File) update(collection string, fn func(t *table) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.load(collection)
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	return f.save(collection, t)
}

func (f *File) Put(_ context.Context, collection, id string, doc any) error {
	d, err := toDocument(id, doc)
	if err != nil {
		return err
	}
	return f.update(collection, func(t *table) error {
		t.put(d)
		return nil
	})
}

func (f *File) Merge(_ context.Context, collection, id string, fields map[string]any) error {
	return f.update(collection, func(t *table) error {
		t.merge(id, fields)
		return nil
	})
}

func (f *File) Delete(_ context.Context, collection, id string) error {
	return f.update(collection, func(t *table) error {
		if !t.remove(id) {
			return notFound(collection, id)
		}
		return nil
	})
}
