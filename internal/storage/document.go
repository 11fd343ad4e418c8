package storage

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// The memory, file and MySQL stores keep documents as JSON objects. These
// helpers convert between Go values and that representation.

type document = map[string]any

func toDocument(id string, v any) (document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var d document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("document must be an object: %w", err)
	}
	if d == nil {
		d = document{}
	}
	d["id"] = id
	return d, nil
}

func fromDocument(d document, out any) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func fromDocuments(ds []document, out any) error {
	if ds == nil {
		ds = []document{}
	}
	b, err := json.Marshal(ds)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// normalize round-trips v through JSON so filter values compare equal to the
// decoded document values (numbers become float64, times become strings).
func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func matches(d document, f Filter) bool {
	for k, want := range f {
		if !reflect.DeepEqual(d[k], normalize(want)) {
			return false
		}
	}
	return true
}

func mergeInto(d document, fields map[string]any) {
	for k, v := range fields {
		if k == "id" {
			continue
		}
		d[k] = normalize(v)
	}
}

func copyDocument(d document) document {
	out := make(document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// table is an ordered collection of JSON documents.
type table struct {
	docs []document
}

func (t *table) index(id string) int {
	for i, d := range t.docs {
		if d["id"] == id {
			return i
		}
	}
	return -1
}

func (t *table) get(id string) (document, bool) {
	if i := t.index(id); i >= 0 {
		return copyDocument(t.docs[i]), true
	}
	return nil, false
}

func (t *table) put(d document) {
	id, _ := d["id"].(string)
	if i := t.index(id); i >= 0 {
		t.docs[i] = d
		return
	}
	t.docs = append(t.docs, d)
}

func (t *table) merge(id string, fields map[string]any) {
	d, ok := t.get(id)
	if !ok {
		d = document{"id": id}
	}
	mergeInto(d, fields)
	t.put(d)
}

func (t *table) remove(id string) bool {
	i := t.index(id)
	if i < 0 {
		return false
	}
	t.docs = append(t.docs[:i], t.docs[i+1:]...)
	return true
}

func (t *table) list(f Filter) []document {
	out := make([]document, 0, len(t.docs))
	for _, d := range t.docs {
		if matches(d, f) {
			out = append(out, copyDocument(d))
		}
	}
	return out
}
