package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "genboard/pkg/logx"
)

const docExt = ".json"

// fileStore keeps one JSON file per document.
//
// Layout under cfg.Path (a directory):
//   - <namespace>/<escaped key>.json
//   - audit.jsonl (append-only JSON Lines)
//
// Writes go to a hidden temp file in the same directory which is fsynced and
// renamed over the target, so a crash mid-write leaves the old document intact.
type fileStore struct {
	log  logx.Logger
	root string

	mu        sync.Mutex
	auditFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	root := strings.TrimSpace(cfg.Path)
	if root == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	af, err := os.OpenFile(filepath.Join(root, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	cleanupTemps(root, log)
	return &fileStore{log: log, root: root, auditFile: af}, nil
}

// cleanupTemps removes temp files orphaned by a crash between create and rename.
func cleanupTemps(root string, log logx.Logger) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && strings.Contains(d.Name(), ".tmp-") {
			if rerr := os.Remove(path); rerr == nil {
				log.Debug("removed orphaned temp file", logx.String("path", path))
			}
		}
		return nil
	})
}

func (s *fileStore) docPath(namespace, key string) string {
	return filepath.Join(s.root, escapeName(namespace), escapeName(key)+docExt)
}

// escapeName path-escapes s and also a leading dot, which would otherwise
// collide with hidden and temp files.
func escapeName(s string) string {
	e := url.PathEscape(s)
	if strings.HasPrefix(e, ".") {
		e = "%2E" + e[1:]
	}
	return e
}

func (s *fileStore) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validName(namespace) || !validName(key) {
		return nil, fmt.Errorf("read %s/%s: %w", namespace, key, ErrNotFound)
	}
	b, err := os.ReadFile(s.docPath(namespace, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s/%s: %w", namespace, key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *fileStore) Write(ctx context.Context, namespace, key string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validName(namespace) || !validName(key) {
		return fmt.Errorf("write: namespace and key are required")
	}
	path := s.docPath(namespace, key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeFileAtomic(dir, path, doc)
}

func writeFileAtomic(dir, path string, b []byte) error {
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	// Persist the rename itself. Not supported everywhere (e.g. Windows); ignore failures.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func (s *fileStore) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.docPath(namespace, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, escapeName(namespace)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, docExt) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, docExt))
		if err != nil {
			s.log.Debug("skipping undecodable document name", logx.String("name", name))
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}
