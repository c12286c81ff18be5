package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	logx "missionctl/pkg/logx"
)

// fileStore keeps each collection as a JSON array in <dir>/<collection>.json.
//
// Nothing is cached: every call re-reads the file, so edits made by another
// process (the CLI, an operator with an editor) are seen on the next read.
// Writes go to a temp file and are renamed into place.
type fileStore struct {
	log logx.Logger
	dir string

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create storage dir")
	}
	log.Debug("file store opened", logx.String("dir", dir))
	return &fileStore{log: log, dir: dir}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// load reads a collection; a missing file is an empty collection.
func (s *fileStore) load(collection string) ([]map[string]any, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path(collection))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read collection %s", collection)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, nil
	}
	var items []map[string]any
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, errors.Wrapf(err, "decode collection %s", collection)
	}
	return items, nil
}

func (s *fileStore) save(collection string, items []map[string]any) error {
	if items == nil {
		items = []map[string]any{}
	}
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode collection %s", collection)
	}
	final := s.path(collection)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "write collection %s", collection)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "commit collection %s", collection)
	}
	return nil
}

func indexOf(items []map[string]any, id string) int {
	for i, it := range items {
		if v, _ := it["id"].(string); v == id {
			return i
		}
	}
	return -1
}

func (s *fileStore) List(ctx context.Context, collection string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	items, err := s.load(collection)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(items))
	for _, it := range items {
		if _, ok := it["id"].(string); !ok {
			s.log.Warn("skipping document without id", logx.String("collection", collection))
			continue
		}
		doc, err := encode(it)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *fileStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	items, err := s.load(collection)
	s.mu.Unlock()
	if err != nil {
		return Document{}, err
	}
	i := indexOf(items, id)
	if i < 0 {
		return Document{}, ErrNotFound
	}
	return encode(items[i])
}

func (s *fileStore) Put(ctx context.Context, collection string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	obj, err := normalize(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load(collection)
	if err != nil {
		return err
	}
	if i := indexOf(items, obj["id"].(string)); i >= 0 {
		items[i] = obj
	} else {
		items = append(items, obj)
	}
	return s.save(collection, items)
}

func (s *fileStore) Patch(ctx context.Context, collection, id string, fields map[string]any) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load(collection)
	if err != nil {
		return Document{}, err
	}
	i := indexOf(items, id)
	if i < 0 {
		return Document{}, ErrNotFound
	}
	items[i] = merge(items[i], fields)
	if err := s.save(collection, items); err != nil {
		return Document{}, err
	}
	return encode(items[i])
}

func (s *fileStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load(collection)
	if err != nil {
		return err
	}
	i := indexOf(items, id)
	if i < 0 {
		return ErrNotFound
	}
	items = append(items[:i], items[i+1:]...)
	return s.save(collection, items)
}
