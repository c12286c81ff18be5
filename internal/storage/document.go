package storage

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// normalize decodes doc.Body as an object and forces its "id" to doc.ID.
func normalize(doc Document) (map[string]any, error) {
	id := strings.TrimSpace(doc.ID)
	if id == "" {
		return nil, ErrInvalidID
	}
	obj := map[string]any{}
	if len(bytes.TrimSpace(doc.Body)) > 0 {
		if err := json.Unmarshal(doc.Body, &obj); err != nil {
			return nil, errors.Wrap(err, "document body must be a JSON object")
		}
		if obj == nil {
			obj = map[string]any{}
		}
	}
	obj["id"] = id
	return obj, nil
}

// merge applies a field patch; nil values delete keys. The id is immutable.
func merge(obj map[string]any, fields map[string]any) map[string]any {
	id := obj["id"]
	for k, v := range fields {
		if v == nil {
			delete(obj, k)
			continue
		}
		obj[k] = v
	}
	obj["id"] = id
	return obj
}

func encode(obj map[string]any) (Document, error) {
	id, _ := obj["id"].(string)
	b, err := json.Marshal(obj)
	if err != nil {
		return Document{}, errors.Wrap(err, "encode document")
	}
	return Document{ID: id, Body: b}, nil
}
