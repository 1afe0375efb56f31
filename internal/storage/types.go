package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("document not found")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": one JSON file per document, replaced via temp file + rename
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// If Driver is empty, "file" is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Documents is a namespaced key-value document store.
//
// Read returns ErrNotFound (wrapped) when the key does not exist.
// Write replaces the whole document atomically.
type Documents interface {
	Read(ctx context.Context, namespace, key string) ([]byte, error)
	Write(ctx context.Context, namespace, key string, doc []byte) error
	Delete(ctx context.Context, namespace, key string) error
	ListKeys(ctx context.Context, namespace string) ([]string, error)
}

// Store is the full persistence API used by the app.
type Store interface {
	Documents
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// AuditEntry records an operator action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time `json:"at"`
	ReqID    string    `json:"req_id,omitempty"`
	ActorID  int64     `json:"actor_id"`
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Action   string    `json:"action"`
	List     string    `json:"list,omitempty"`
	Target   string    `json:"target,omitempty"`
	Error    string    `json:"err,omitempty"`
}
