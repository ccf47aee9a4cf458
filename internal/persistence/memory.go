package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"connector/pkg/errors"
	"connector/pkg/models"
)

// MemoryStore keeps messages in process memory. Transactions work on a
// copy-on-write fork of the committed state and are serialized.
type MemoryStore struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

type memState struct {
	messages map[string]*models.Message
	order    []string
}

func newMemState() *memState {
	return &memState{messages: make(map[string]*models.Message)}
}

// fork shares message pointers with s; writers replace a message with a
// clone before changing it.
func (s *memState) fork() *memState {
	f := &memState{
		messages: make(map[string]*models.Message, len(s.messages)),
		order:    append([]string(nil), s.order...),
	}
	for id, m := range s.messages {
		f.messages[id] = m
	}
	return f
}

func (s *memState) create(msg *models.Message) error {
	if msg.ConnectorMessageID == "" {
		return errors.ErrValidation.WithMessage("connector message id is required")
	}
	if _, exists := s.messages[msg.ConnectorMessageID]; exists {
		return errors.ErrConflict.WithMessage(fmt.Sprintf("message %s already exists", msg.ConnectorMessageID))
	}
	stored := msg.Clone()
	stored.TransportedConfirmations = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.messages[stored.ConnectorMessageID] = stored
	s.order = append(s.order, stored.ConnectorMessageID)
	return nil
}

func (s *memState) get(id string) (*models.Message, error) {
	m, ok := s.messages[id]
	if !ok {
		return nil, errors.ErrNotFound.WithMessage(fmt.Sprintf("message %s not found", id))
	}
	return m, nil
}

func (s *memState) findBusiness(id string, direction models.Direction) (*models.Message, error) {
	for _, cid := range s.order {
		m := s.messages[cid]
		if m.Direction != direction {
			continue
		}
		d := m.Details
		if m.ConnectorMessageID == id || (d.EbmsMessageID != "" && d.EbmsMessageID == id) ||
			(d.BackendMessageID != "" && d.BackendMessageID == id) {
			return m, nil
		}
	}
	return nil, errors.ErrNotFound.WithMessage(fmt.Sprintf("no %s message with id %s", direction, id))
}

func (s *memState) mutate(id string, fn func(m *models.Message) error) error {
	m, err := s.get(id)
	if err != nil {
		return err
	}
	c := m.Clone()
	if err := fn(c); err != nil {
		return err
	}
	s.messages[id] = c
	return nil
}

func (s *memState) attach(id string, c models.Confirmation) error {
	return s.mutate(id, func(m *models.Message) error {
		if m.HasRelatedConfirmation(c.EvidenceType) {
			return errors.ErrConflict.WithMessage(fmt.Sprintf("message %s already has %s evidence", id, c.EvidenceType))
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		m.RelatedConfirmations = append(m.RelatedConfirmations, c)
		return nil
	})
}

func (s *memState) markConfirmed(id string, at time.Time) error {
	return s.mutate(id, func(m *models.Message) error {
		if m.IsTerminal() {
			return errors.ErrConflict.WithMessage(fmt.Sprintf("message %s is already terminal", id))
		}
		m.Details.ConfirmedAt = &at
		return nil
	})
}

func (s *memState) markRejected(id string, at time.Time) error {
	return s.mutate(id, func(m *models.Message) error {
		if m.IsTerminal() {
			return errors.ErrConflict.WithMessage(fmt.Sprintf("message %s is already terminal", id))
		}
		m.Details.RejectedAt = &at
		return nil
	})
}

func (s *memState) deleteContent(id string) error {
	return s.mutate(id, func(m *models.Message) error {
		m.Content = nil
		m.Attachments = nil
		return nil
	})
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	tx := &memTx{state: s.state.fork()}
	s.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = tx.state
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) write(fn func(st *memState) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	return s.write(func(st *memState) error { return st.create(msg) })
}

func (s *MemoryStore) FindBusinessMessageByIDAndDirection(ctx context.Context, id string, direction models.Direction) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.state.findBusiness(id, direction)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

func (s *MemoryStore) FindMessageByConnectorID(ctx context.Context, connectorMessageID string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.state.get(connectorMessageID)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

func (s *MemoryStore) AttachConfirmation(ctx context.Context, connectorMessageID string, c models.Confirmation) error {
	return s.write(func(st *memState) error { return st.attach(connectorMessageID, c) })
}

func (s *MemoryStore) MarkConfirmed(ctx context.Context, connectorMessageID string, at time.Time) error {
	return s.write(func(st *memState) error { return st.markConfirmed(connectorMessageID, at) })
}

func (s *MemoryStore) MarkRejected(ctx context.Context, connectorMessageID string, at time.Time) error {
	return s.write(func(st *memState) error { return st.markRejected(connectorMessageID, at) })
}

func (s *MemoryStore) DeleteContentForMessage(ctx context.Context, connectorMessageID string) error {
	return s.write(func(st *memState) error { return st.deleteContent(connectorMessageID) })
}

// Messages returns copies of all stored messages in insertion order.
func (s *MemoryStore) Messages() []*models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Message, 0, len(s.state.order))
	for _, id := range s.state.order {
		out = append(out, s.state.messages[id].Clone())
	}
	return out
}

// memTx is the Store handed to WithinTx callbacks.
type memTx struct {
	state *memState
}

func (t *memTx) CreateMessage(ctx context.Context, msg *models.Message) error {
	return t.state.create(msg)
}

func (t *memTx) FindBusinessMessageByIDAndDirection(ctx context.Context, id string, direction models.Direction) (*models.Message, error) {
	m, err := t.state.findBusiness(id, direction)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

func (t *memTx) FindMessageByConnectorID(ctx context.Context, connectorMessageID string) (*models.Message, error) {
	m, err := t.state.get(connectorMessageID)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

func (t *memTx) AttachConfirmation(ctx context.Context, connectorMessageID string, c models.Confirmation) error {
	return t.state.attach(connectorMessageID, c)
}

func (t *memTx) MarkConfirmed(ctx context.Context, connectorMessageID string, at time.Time) error {
	return t.state.markConfirmed(connectorMessageID, at)
}

func (t *memTx) MarkRejected(ctx context.Context, connectorMessageID string, at time.Time) error {
	return t.state.markRejected(connectorMessageID, at)
}

func (t *memTx) DeleteContentForMessage(ctx context.Context, connectorMessageID string) error {
	return t.state.deleteContent(connectorMessageID)
}
