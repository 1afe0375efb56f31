package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"genboard/internal/storage"
	"genboard/internal/transport"
)

// BindingNamespace holds one binding document per list.
const BindingNamespace = "dashboards"

// Binding is where a list's dashboard message lives.
// MessageID is zero until the first successful send.
type Binding struct {
	List      string    `json:"list"`
	ChatID    int64     `json:"chat_id"`
	ThreadID  int       `json:"thread_id,omitempty"`
	MessageID int       `json:"message_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b Binding) Target() transport.ChatTarget {
	return transport.ChatTarget{ChatID: b.ChatID, ThreadID: b.ThreadID}
}

func (b Binding) Ref() transport.MessageRef {
	return transport.MessageRef{ChatID: b.ChatID, ThreadID: b.ThreadID, MessageID: b.MessageID}
}

func (b Binding) HasMessage() bool { return b.ChatID != 0 && b.MessageID != 0 }

type bindingStore struct {
	docs storage.Documents
}

func (s bindingStore) get(ctx context.Context, list string) (Binding, bool, error) {
	raw, err := s.docs.Read(ctx, BindingNamespace, list)
	if errors.Is(err, storage.ErrNotFound) {
		return Binding{}, false, nil
	}
	if err != nil {
		return Binding{}, false, fmt.Errorf("read binding %q: %w", list, err)
	}
	var b Binding
	if err := json.Unmarshal(raw, &b); err != nil {
		// A broken binding only costs one extra message.
		return Binding{}, false, nil
	}
	b.List = list
	return b, true, nil
}

func (s bindingStore) put(ctx context.Context, b Binding) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	if err := s.docs.Write(ctx, BindingNamespace, b.List, raw); err != nil {
		return fmt.Errorf("write binding %q: %w", b.List, err)
	}
	return nil
}

func (s bindingStore) delete(ctx context.Context, list string) error {
	return s.docs.Delete(ctx, BindingNamespace, list)
}

// binding returns the stored binding for list. A binding kept in memory after
// a failed write wins, and saving it is retried here.
func (s *Service) binding(ctx context.Context, list string) (Binding, bool, error) {
	s.mu.Lock()
	b, pending := s.unsaved[list]
	s.mu.Unlock()
	if !pending {
		return s.binds.get(ctx, list)
	}
	if err := s.binds.put(ctx, b); err == nil {
		s.dropUnsaved(list)
	}
	return b, true, nil
}

func (s *Service) keepUnsaved(b Binding) {
	s.mu.Lock()
	s.unsaved[b.List] = b
	s.mu.Unlock()
}

func (s *Service) dropUnsaved(list string) {
	s.mu.Lock()
	delete(s.unsaved, list)
	s.mu.Unlock()
}
