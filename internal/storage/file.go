package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// fileBucket keeps one JSON file per kind inside a directory. Writes go to a
// temp file that is renamed into place.
type fileBucket struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore returns a Store backed by JSON files under dir.
func NewFileStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return newStore(&fileBucket{dir: dir}), nil
}

func (f *fileBucket) path(kind string) string {
	return filepath.Join(f.dir, kind+".json")
}

func (f *fileBucket) get(_ context.Context, kind, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.readMap(kind)
	if err != nil {
		return nil, err
	}
	data, ok := entries[id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return data, nil
}

func (f *fileBucket) put(_ context.Context, kind string, updates map[string][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.readMap(kind)
	if err != nil {
		return err
	}
	for id, data := range updates {
		entries[id] = data
	}
	return f.write(kind, entries)
}

func (f *fileBucket) all(_ context.Context, kind string) (map[string][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.readMap(kind)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(entries))
	for id, data := range entries {
		out[id] = data
	}
	return out, nil
}

func (f *fileBucket) appendEntry(_ context.Context, kind string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	list, err := f.readList(kind)
	if err != nil {
		return err
	}
	return f.write(kind, append(list, data))
}

func (f *fileBucket) recent(_ context.Context, kind string, limit int) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	list, err := f.readList(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([][]byte, 0, limit)
	for i := len(list) - 1; i >= len(list)-limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

func (f *fileBucket) close() error { return nil }

func (f *fileBucket) readMap(kind string) (map[string][]byte, error) {
	raw := map[string]json.RawMessage{}
	if err := f.read(kind, &raw); err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(raw))
	for id, data := range raw {
		out[id] = data
	}
	return out, nil
}

func (f *fileBucket) readList(kind string) ([][]byte, error) {
	var raw []json.RawMessage
	if err := f.read(kind, &raw); err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(raw))
	for _, data := range raw {
		out = append(out, data)
	}
	return out, nil
}

func (f *fileBucket) read(kind string, into any) error {
	data, err := os.ReadFile(f.path(kind))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", kind, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse %s: %w", f.path(kind), err)
	}
	return nil
}

func (f *fileBucket) write(kind string, value any) error {
	var payload any
	switch v := value.(type) {
	case map[string][]byte:
		m := make(map[string]json.RawMessage, len(v))
		for id, data := range v {
			m[id] = data
		}
		payload = m
	case [][]byte:
		l := make([]json.RawMessage, 0, len(v))
		for _, data := range v {
			l = append(l, data)
		}
		payload = l
	default:
		payload = v
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}

	tmp, err := os.CreateTemp(f.dir, kind+"-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", kind, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", kind, err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", kind, err)
	}
	if err := os.Rename(tmpName, f.path(kind)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", kind, err)
	}
	return nil
}
