package docstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// EncodeObject marshals data as a JSON object and stamps its "id" field.
func EncodeObject(data any, id string) (json.RawMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("encode document: data must be a JSON object")
	}
	idRaw, _ := json.Marshal(id)
	obj["id"] = idRaw
	return json.Marshal(obj)
}

// MergePatch applies the top-level keys of patch over base. The "id" key
// cannot be overwritten.
func MergePatch(base json.RawMessage, patch map[string]any) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(base, &obj); err != nil {
		return nil, fmt.Errorf("merge patch: %w", err)
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("merge patch %q: %w", k, err)
		}
		obj[k] = b
	}
	return json.Marshal(obj)
}

// PatchJSON marshals patch without its "id" key, for stores that merge
// server-side.
func PatchJSON(patch map[string]any) (json.RawMessage, error) {
	clean := make(map[string]any, len(patch))
	for k, v := range patch {
		if k != "id" {
			clean[k] = v
		}
	}
	return json.Marshal(clean)
}

// FieldString returns the string value of a top-level field.
func FieldString(data json.RawMessage, field string) (string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", false
	}
	raw, ok := obj[field]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func Decode[T any](d Document) (T, error) {
	var t T
	if err := json.Unmarshal(d.Data, &t); err != nil {
		return t, fmt.Errorf("decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return t, nil
}

func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		t, err := Decode[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func GetAs[T any](ctx context.Context, s Store, collection, id string) (T, error) {
	d, err := s.Get(ctx, collection, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](d)
}

func ListAs[T any](ctx context.Context, s Store, collection string) ([]T, error) {
	docs, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T](docs)
}

func WhereAs[T any](ctx context.Context, s Store, collection, field, value string) ([]T, error) {
	docs, err := s.Where(ctx, collection, field, value)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T](docs)
}
