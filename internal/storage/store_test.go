package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	logx "genboard/pkg/logx"
)

func openTestStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fs, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "docs")}, logx.Nop())
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "genboard.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = fs.Close()
		_ = sq.Close()
	})
	return map[string]Store{"file": fs, "sqlite": sq}
}

func TestDocumentsRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range openTestStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			if _, err := st.Read(ctx, "generators", "base"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Read missing: err = %v, want ErrNotFound", err)
			}

			if err := st.Write(ctx, "generators", "base", []byte(`{"a":1}`)); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := st.Write(ctx, "generators", "base", []byte(`{"a":2}`)); err != nil {
				t.Fatalf("Write (replace): %v", err)
			}
			if err := st.Write(ctx, "generators", "Outpost/North", []byte(`{}`)); err != nil {
				t.Fatalf("Write escaped key: %v", err)
			}
			if err := st.Write(ctx, "dashboards", "base", []byte(`{}`)); err != nil {
				t.Fatalf("Write other namespace: %v", err)
			}

			b, err := st.Read(ctx, "generators", "base")
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if string(b) != `{"a":2}` {
				t.Fatalf("Read = %s, want replaced doc", b)
			}

			keys, err := st.ListKeys(ctx, "generators")
			if err != nil {
				t.Fatalf("ListKeys: %v", err)
			}
			if want := []string{"Outpost/North", "base"}; !reflect.DeepEqual(keys, want) {
				t.Fatalf("ListKeys = %v, want %v", keys, want)
			}

			if err := st.Delete(ctx, "generators", "base"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := st.Delete(ctx, "generators", "base"); err != nil {
				t.Fatalf("Delete twice should be a no-op: %v", err)
			}
			if _, err := st.Read(ctx, "generators", "base"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Read after delete: err = %v, want ErrNotFound", err)
			}

			if err := st.AppendAudit(ctx, AuditEntry{Action: "gen.add", List: "base"}); err != nil {
				t.Fatalf("AppendAudit: %v", err)
			}
		})
	}
}

func TestFileStoreIgnoresAndCleansTempFiles(t *testing.T) {
	root := filepath.Join(t.TempDir(), "docs")
	ns := filepath.Join(root, "generators")
	if err := os.MkdirAll(ns, 0o755); err != nil {
		t.Fatal(err)
	}
	// Simulate a crash between temp write and rename.
	orphan := filepath.Join(ns, ".base.json.tmp-123")
	if err := os.WriteFile(orphan, []byte(`{"half`), 0o600); err != nil {
		t.Fatal(err)
	}

	st, err := Open(Config{Driver: "file", Path: root}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatalf("expected orphaned temp file to be removed, stat err = %v", err)
	}
	keys, err := st.ListKeys(context.Background(), "generators")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("ListKeys = %v, want none", keys)
	}
}

func TestFileStoreWriteLeavesNoTempFiles(t *testing.T) {
	root := filepath.Join(t.TempDir(), "docs")
	st, err := Open(Config{Driver: "file", Path: root}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	for i := 0; i < 5; i++ {
		if err := st.Write(context.Background(), "generators", "base", []byte(`{}`)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	entries, err := os.ReadDir(filepath.Join(root, "generators"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one document file, got %d", len(entries))
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "none"}, logx.Nop()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("driver none: err = %v, want ErrDisabled", err)
	}
}

func TestDotKeysRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range openTestStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{".base", "..", ".tmp-x"} {
				if err := st.Write(ctx, "generators", key, []byte(`{}`)); err != nil {
					t.Fatalf("Write %q: %v", key, err)
				}
			}
			keys, err := st.ListKeys(ctx, "generators")
			if err != nil {
				t.Fatalf("ListKeys: %v", err)
			}
			want := []string{"..", ".base", ".tmp-x"}
			if !reflect.DeepEqual(keys, want) {
				t.Fatalf("ListKeys = %q, want %q", keys, want)
			}
		})
	}
}

func TestFileStoreKeepsDotKeysAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "docs")
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Write(ctx, "generators", ".base.tmp-1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_ = st.Close()

	st, err = Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	b, err := st.Read(ctx, "generators", ".base.tmp-1")
	if err != nil || string(b) != `{"a":1}` {
		t.Fatalf("Read after reopen = %q, %v", b, err)
	}
}
