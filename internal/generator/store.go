package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"genboard/internal/storage"
	logx "genboard/pkg/logx"
)

// Namespace is the document namespace holding one document per list.
const Namespace = "generators"

var (
	ErrDuplicateItem = errors.New("generator already exists in list")
	ErrItemNotFound  = errors.New("generator not found in list")
	ErrInvalidName   = errors.New("invalid name")
)

// Store persists generator lists as documents.
//
// Mutations are read-modify-write under a store-wide mutex; concurrent writers
// in other processes are last-write-wins at the document level.
type Store struct {
	docs storage.Documents
	log  logx.Logger
	now  func() time.Time

	mu sync.Mutex
}

func NewStore(docs storage.Documents, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{docs: docs, log: log.With(logx.String("comp", "generator.store")), now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	return name, nil
}

// Load returns the list in its current schema. A missing list is empty.
// A list document that needed migration is written back; failing to do so is
// only logged.
func (s *Store) Load(ctx context.Context, listName string) (List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, listName)
}

func (s *Store) load(ctx context.Context, listName string) (List, error) {
	name, err := cleanName(listName)
	if err != nil {
		return List{}, err
	}
	empty := List{Schema: SchemaVersion, Items: []Item{}}

	raw, err := s.docs.Read(ctx, Namespace, name)
	if errors.Is(err, storage.ErrNotFound) {
		return empty, nil
	}
	if err != nil {
		return List{}, fmt.Errorf("load list %q: %w", name, err)
	}

	list, changed, err := Normalize(raw, s.now())
	if err != nil {
		s.log.Warn("list document unreadable, treating as empty",
			logx.String("list", name), logx.Err(err))
		return empty, nil
	}
	if changed {
		if werr := s.save(ctx, name, list); werr != nil {
			s.log.Warn("failed to persist normalized list",
				logx.String("list", name), logx.Err(werr))
		} else {
			s.log.Info("normalized list document", logx.String("list", name), logx.Int("items", len(list.Items)))
		}
	}
	return list, nil
}

// Save replaces the whole list document.
func (s *Store) Save(ctx context.Context, listName string, list List) error {
	name, err := cleanName(listName)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, name, list)
}

func (s *Store) save(ctx context.Context, name string, list List) error {
	list.Schema = SchemaVersion
	if list.Items == nil {
		list.Items = []Item{}
	}
	b, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode list %q: %w", name, err)
	}
	if err := s.docs.Write(ctx, Namespace, name, b); err != nil {
		return fmt.Errorf("save list %q: %w", name, err)
	}
	return nil
}

// update runs fn on the loaded list and saves the result if fn succeeds.
func (s *Store) update(ctx context.Context, listName string, fn func(*List) error) error {
	name, err := cleanName(listName)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	if err := fn(&list); err != nil {
		return err
	}
	return s.save(ctx, name, list)
}

// AddItem appends a new generator. Names are unique per list, ignoring case.
func (s *Store) AddItem(ctx context.Context, listName string, it Item) error {
	itemName, err := cleanName(it.Name)
	if err != nil {
		return err
	}
	it.Name = itemName
	if _, err := ParseKind(string(it.Kind)); err != nil {
		return err
	}
	if it.StartedAt <= 0 {
		it.StartedAt = s.now().Unix()
	}
	return s.update(ctx, listName, func(l *List) error {
		if _, ok := l.Find(it.Name); ok {
			return fmt.Errorf("%w: %s", ErrDuplicateItem, it.Name)
		}
		l.Items = append(l.Items, it)
		return nil
	})
}

// SetRole stores the opaque notification target for a list. Empty clears it.
func (s *Store) SetRole(ctx context.Context, listName, roleID string) error {
	return s.update(ctx, listName, func(l *List) error {
		l.RoleID = strings.TrimSpace(roleID)
		return nil
	})
}

// FindItem returns the position of name in the list.
func (s *Store) FindItem(ctx context.Context, listName, name string) (int, bool, error) {
	list, err := s.Load(ctx, listName)
	if err != nil {
		return -1, false, err
	}
	idx, ok := list.Find(name)
	return idx, ok, nil
}

func (s *Store) updateItem(ctx context.Context, listName, name string, fn func(*Item)) (Item, error) {
	var out Item
	err := s.update(ctx, listName, func(l *List) error {
		idx, ok := l.Find(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrItemNotFound, strings.TrimSpace(name))
		}
		fn(&l.Items[idx])
		out = l.Items[idx]
		return nil
	})
	return out, err
}

func (s *Store) SetNotes(ctx context.Context, listName, name, notes string) (Item, error) {
	return s.updateItem(ctx, listName, name, func(it *Item) { it.Notes = strings.TrimSpace(notes) })
}

func (s *Store) SetMuted(ctx context.Context, listName, name string, muted bool) (Item, error) {
	return s.updateItem(ctx, listName, name, func(it *Item) { it.AlertsMuted = muted })
}

// Refuel restarts a generator with a new fuel load. This is the only operation
// that clears the expired flag.
func (s *Store) Refuel(ctx context.Context, listName, name string, fuel Fuel) (Item, error) {
	now := s.now().Unix()
	return s.updateItem(ctx, listName, name, func(it *Item) {
		it.setFuel(fuel)
		it.StartedAt = now
		it.Expired = false
		it.AlertedLow = false
		it.AlertedEmpty = false
	})
}

// MarkExpired flips expired on the named items and returns the ones that
// changed. Items already expired are left alone.
func (s *Store) MarkExpired(ctx context.Context, listName string, names []string) ([]Item, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var flipped []Item
	err := s.update(ctx, listName, func(l *List) error {
		for _, n := range names {
			idx, ok := l.Find(n)
			if !ok || l.Items[idx].Expired {
				continue
			}
			l.Items[idx].Expired = true
			l.Items[idx].AlertedEmpty = true
			flipped = append(flipped, l.Items[idx])
		}
		if len(flipped) == 0 {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil, nil
	}
	return flipped, err
}

var errNoChange = errors.New("no change")

func (s *Store) RemoveItem(ctx context.Context, listName, name string) error {
	return s.update(ctx, listName, func(l *List) error {
		idx, ok := l.Find(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrItemNotFound, strings.TrimSpace(name))
		}
		l.Items = append(l.Items[:idx], l.Items[idx+1:]...)
		return nil
	})
}

// DeleteList removes the list document. Deleting a missing list is not an error.
func (s *Store) DeleteList(ctx context.Context, listName string) error {
	name, err := cleanName(listName)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.docs.Delete(ctx, Namespace, name); err != nil {
		return fmt.Errorf("delete list %q: %w", name, err)
	}
	return nil
}

// ListNames returns all stored list names in sorted order.
func (s *Store) ListNames(ctx context.Context) ([]string, error) {
	names, err := s.docs.ListKeys(ctx, Namespace)
	if err != nil {
		return nil, fmt.Errorf("list generator lists: %w", err)
	}
	return names, nil
}
