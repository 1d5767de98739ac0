package store

import (
	"context"
	"sync"
	"time"

	"github.com/rynok/market/internal/domain"
)

// MemoryStore keeps everything in maps. It backs the "memory" driver
// for demos and is what the protocol tests run against.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[domain.UserID]domain.User
	messages map[domain.MessageID]*domain.Message
	nextUser domain.UserID
	nextMsg  domain.MessageID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[domain.UserID]domain.User),
		messages: make(map[domain.MessageID]*domain.Message),
		nextUser: 1,
		nextMsg:  1,
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) GetUser(_ context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, username, firstName, lastName string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := domain.User{ID: s.nextUser, Username: username, FirstName: firstName, LastName: lastName}
	s.users[u.ID] = u
	s.nextUser++
	return &u, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, sender, recipient domain.UserID, content string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &domain.Message{
		ID:          s.nextMsg,
		SenderID:    sender,
		RecipientID: recipient,
		Content:     content,
		Timestamp:   time.Now().UTC(),
	}
	s.messages[m.ID] = m
	s.nextMsg++
	out := *m
	return &out, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id domain.MessageID) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *m
	return &out, nil
}

func (s *MemoryStore) UpdateContent(_ context.Context, id domain.MessageID, sender domain.UserID, content string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.SenderID != sender || m.IsDeleted {
		return nil, ErrNotOwner
	}
	m.Content = content
	out := *m
	return &out, nil
}

func (s *MemoryStore) SoftDelete(_ context.Context, id domain.MessageID, sender domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	if m.SenderID != sender {
		return ErrNotOwner
	}
	m.IsDeleted = true
	return nil
}

func (s *MemoryStore) MarkRead(_ context.Context, ids []domain.MessageID, recipient domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if m, ok := s.messages[id]; ok && m.RecipientID == recipient {
			m.IsRead = true
		}
	}
	return nil
}

func (s *MemoryStore) Conversation(_ context.Context, user, partner domain.UserID) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	// Insert order equals creation order, ids are monotonic.
	for id := domain.MessageID(1); id < s.nextMsg; id++ {
		m, ok := s.messages[id]
		if !ok || m.IsDeleted {
			continue
		}
		if (m.SenderID == user && m.RecipientID == partner) || (m.SenderID == partner && m.RecipientID == user) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkConversationRead(_ context.Context, reader, partner domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.SenderID == partner && m.RecipientID == reader {
			m.IsRead = true
		}
	}
	return nil
}

func (s *MemoryStore) UnreadCount(_ context.Context, user domain.UserID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.RecipientID == user && !m.IsRead && !m.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Conversations(ctx context.Context, user domain.UserID) ([]ConversationSummary, error) {
	s.mu.Lock()
	seen := make(map[domain.UserID]struct{})
	var partners []domain.UserID
	for id := domain.MessageID(1); id < s.nextMsg; id++ {
		m, ok := s.messages[id]
		if !ok {
			continue
		}
		var other domain.UserID
		switch user {
		case m.SenderID:
			other = m.RecipientID
		case m.RecipientID:
			other = m.SenderID
		default:
			continue
		}
		if _, dup := seen[other]; !dup {
			seen[other] = struct{}{}
			partners = append(partners, other)
		}
	}
	s.mu.Unlock()
	return buildSummaries(ctx, s, user, partners)
}
