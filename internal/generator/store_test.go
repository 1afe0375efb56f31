package generator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"genboard/internal/storage"
	logx "genboard/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, storage.Store) {
	t.Helper()
	docs, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "docs")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	s := NewStore(docs, logx.Nop())
	s.SetClock(func() time.Time { return t0 })
	return s, docs
}

func TestStoreAddAndFind(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.AddItem(ctx, "base", NewItem("Main Tek", KindTek, Fuel{10, 2}, t0)))
	require.NoError(t, s.AddItem(ctx, "base", NewItem("Barn", KindElectrical, Fuel{5, 1}, t0)))

	err := s.AddItem(ctx, "base", NewItem("main tek", KindElectrical, Fuel{1, 1}, t0))
	require.ErrorIs(t, err, ErrDuplicateItem)

	idx, ok, err := s.FindItem(ctx, "base", "  BARN ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok, err = s.FindItem(ctx, "base", "Barn 2")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := s.Load(ctx, "base")
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, SchemaVersion, list.Schema)
	assert.Equal(t, 0, list.Items[1].Shards, "inactive pair stays zero")
	assert.Equal(t, t0.Unix(), list.Items[0].StartedAt)
}

func TestStoreLoadMissingListIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	list, err := s.Load(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Empty(t, list.Items)
	assert.Equal(t, "", list.RoleID)
}

func TestStoreRoleNotesMute(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.AddItem(ctx, "base", NewItem("Gen", KindTek, Fuel{1, 1}, t0)))

	require.NoError(t, s.SetRole(ctx, "base", "123456"))
	_, err := s.SetNotes(ctx, "base", "gen", " behind the vault ")
	require.NoError(t, err)
	_, err = s.SetMuted(ctx, "base", "GEN", true)
	require.NoError(t, err)

	_, err = s.SetNotes(ctx, "base", "missing", "x")
	require.ErrorIs(t, err, ErrItemNotFound)

	list, err := s.Load(ctx, "base")
	require.NoError(t, err)
	assert.Equal(t, "123456", list.RoleID)
	assert.Equal(t, "behind the vault", list.Items[0].Notes)
	assert.True(t, list.Items[0].AlertsMuted)
}

func TestStoreRefuelClearsExpiry(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.AddItem(ctx, "base", NewItem("Gen", KindElectrical, Fuel{1, 0}, t0)))

	flipped, err := s.MarkExpired(ctx, "base", []string{"gen"})
	require.NoError(t, err)
	require.Len(t, flipped, 1)

	again, err := s.MarkExpired(ctx, "base", []string{"gen"})
	require.NoError(t, err)
	assert.Empty(t, again, "already expired items are not flipped twice")

	later := t0.Add(48 * time.Hour)
	s.SetClock(func() time.Time { return later })
	it, err := s.Refuel(ctx, "base", "Gen", Fuel{4, 2})
	require.NoError(t, err)
	assert.False(t, it.Expired)
	assert.False(t, it.AlertedEmpty)
	assert.Equal(t, later.Unix(), it.StartedAt)
	assert.Equal(t, Fuel{4, 2}, it.Fuel())
}

func TestStoreRemoveAndDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.AddItem(ctx, "b", NewItem("One", KindTek, Fuel{1, 1}, t0)))
	require.NoError(t, s.AddItem(ctx, "a", NewItem("Two", KindTek, Fuel{1, 1}, t0)))

	names, err := s.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.ErrorIs(t, s.RemoveItem(ctx, "b", "nope"), ErrItemNotFound)
	require.NoError(t, s.RemoveItem(ctx, "b", "one"))
	list, err := s.Load(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, list.Items)

	require.NoError(t, s.DeleteList(ctx, "a"))
	names, err = s.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)
}

func TestStoreHealsLegacyDocument(t *testing.T) {
	ctx := context.Background()
	s, docs := newTestStore(t)

	legacy := `[
		{"name":"Old Tek","type":"tek","shards":"12","element":-3,"gas":9,"timestamp":1690000000},
		{"name":"","kind":"Tek"},
		{"name":"Ghost","kind":"Solar"},
		"garbage",
		{"name":"Barn","kind":"Electrical","gas":2.7,"imbued":1,"start_time":"2023-07-22T04:26:40Z","muted":true}
	]`
	require.NoError(t, docs.Write(ctx, Namespace, "legacy", []byte(legacy)))

	list, err := s.Load(ctx, "legacy")
	require.NoError(t, err)
	require.Len(t, list.Items, 2)

	old := list.Items[0]
	assert.Equal(t, KindTek, old.Kind)
	assert.Equal(t, 12, old.Shards)
	assert.Equal(t, 0, old.Element)
	assert.Equal(t, 0, old.Gas, "inactive pair is zeroed")
	assert.Equal(t, int64(1690000000), old.StartedAt)

	barn := list.Items[1]
	assert.Equal(t, 2, barn.Gas)
	assert.Equal(t, int64(1690000000), barn.StartedAt)
	assert.True(t, barn.AlertsMuted)

	raw, err := docs.Read(ctx, Namespace, "legacy")
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.EqualValues(t, SchemaVersion, stored["schema"], "normalized form is written back")

	// A second load sees nothing left to migrate.
	_, changed, err := Normalize(raw, t0)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStoreUndecodableDocumentLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	s, docs := newTestStore(t)
	require.NoError(t, docs.Write(ctx, Namespace, "broken", []byte(`{"items": [`)))

	list, err := s.Load(ctx, "broken")
	require.NoError(t, err)
	assert.Empty(t, list.Items)

	// Adding to it replaces the broken document.
	require.NoError(t, s.AddItem(ctx, "broken", NewItem("New", KindTek, Fuel{1, 1}, t0)))
	list, err = s.Load(ctx, "broken")
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)
}

func TestNormalizeVersions(t *testing.T) {
	cases := []struct {
		name    string
		doc     string
		role    string
		items   int
		changed bool
	}{
		{"v0 bare array", `[{"name":"a","kind":"Tek","shards":1,"element":1,"started_at":5}]`, "", 1, true},
		{"v1 wrapper", `{"role_id":"99","items":[{"name":"a","kind":"Tek","shards":1,"element":1,"started_at":5}]}`, "99", 1, true},
		{"numeric role", `{"schema":2,"role_id":1234,"items":[]}`, "1234", 0, true},
		{"null", `null`, "", 0, true},
		{"scalar", `42`, "", 0, true},
		{"duplicate names", `{"schema":2,"items":[{"name":"a","kind":"Tek"},{"name":"A","kind":"Tek"}]}`, "", 1, true},
		{"current", `{"schema":2,"role_id":"9","items":[{"name":"a","kind":"Tek","element":1,"shards":1,"gas":0,"imbued":0,"started_at":5,"expired":false,"alerted_low":false,"alerted_empty":false,"alerts_muted":false,"notes":""}]}`, "9", 1, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			list, changed, err := Normalize([]byte(tc.doc), t0)
			require.NoError(t, err)
			assert.Equal(t, tc.role, list.RoleID)
			assert.Len(t, list.Items, tc.items)
			assert.Equal(t, tc.changed, changed)
			assert.Equal(t, SchemaVersion, list.Schema)
		})
	}
}

func TestNormalizeMissingStartUsesNow(t *testing.T) {
	list, _, err := Normalize([]byte(`[{"name":"a","kind":"e","gas":1}]`), t0)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, t0.Unix(), list.Items[0].StartedAt)
	assert.Equal(t, KindElectrical, list.Items[0].Kind)
}

func TestNormalizeRejectsNonJSON(t *testing.T) {
	_, _, err := Normalize([]byte("not json"), t0)
	require.Error(t, err)
}

func TestStoreListsNamesStartingWithDot(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.AddItem(ctx, ".base", NewItem("Gen", KindTek, Fuel{1, 0}, t0)))
	require.NoError(t, s.AddItem(ctx, "base", NewItem("Gen", KindTek, Fuel{1, 0}, t0)))

	names, err := s.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{".base", "base"}, names)
}
