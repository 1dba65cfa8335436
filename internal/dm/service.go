package dm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"teamchat/internal/metrics"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("conversation not found")
	ErrForbidden  = errors.New("not a participant")
	ErrNotSender  = errors.New("not the sender")
)

const (
	maxContentLength = 4000
	defaultPageSize  = 50
	maxPageSize      = 100
	maxSearchResults = 50
	maxParticipants  = 50
)

// Store is the subset of Repository the service depends on.
type Store interface {
	FindDirect(ctx context.Context, userA, userB string) (*Conversation, error)
	CreateConversation(ctx context.Context, conv *Conversation, participantIDs []string) error
	GetForUser(ctx context.Context, conversationID, userID string) (*Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	CreateMessage(ctx context.Context, m *DirectMessage) error
	GetMessageByID(ctx context.Context, id string) (*DirectMessage, error)
	ListMessages(ctx context.Context, conversationID string, limit int, before *time.Time) ([]*DirectMessage, error)
	UpdateMessageContent(ctx context.Context, id, content string) (*DirectMessage, error)
	DeleteMessage(ctx context.Context, id string) error
	TouchLastRead(ctx context.Context, conversationID, userID string) error
	BumpConversation(ctx context.Context, conversationID string) error
	Search(ctx context.Context, userID, query, conversationID string, limit int) ([]*DirectMessage, error)
}

// UserChecker verifies that invited participants exist.
type UserChecker interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

type Service struct {
	repo  Store
	users UserChecker
}

func NewService(repo Store, users UserChecker) *Service {
	return &Service{repo: repo, users: users}
}

// CreateConversation opens a conversation with the given participants.
// For two-person non-group conversations an existing one is reused, so
// the same pair never accumulates duplicates. The created flag reports
// which case applied.
func (s *Service) CreateConversation(ctx context.Context, userID string, req *CreateConversationRequest) (*Conversation, bool, error) {
	ids := map[string]bool{userID: true}
	for _, id := range req.ParticipantIDs {
		if id != "" {
			ids[id] = true
		}
	}
	if len(ids) < 2 {
		return nil, false, fmt.Errorf("%w: at least one other participant is required", ErrValidation)
	}
	if len(ids) > maxParticipants {
		return nil, false, fmt.Errorf("%w: too many participants", ErrValidation)
	}
	if req.IsGroup && len(ids) < 3 {
		return nil, false, fmt.Errorf("%w: group conversations need at least 3 participants", ErrValidation)
	}
	if !req.IsGroup && len(ids) != 2 {
		return nil, false, fmt.Errorf("%w: direct conversations have exactly 2 participants", ErrValidation)
	}

	participants := make([]string, 0, len(ids))
	for id := range ids {
		participants = append(participants, id)
	}

	for _, id := range participants {
		if id == userID {
			continue
		}
		exists, err := s.users.Exists(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if !exists {
			return nil, false, fmt.Errorf("%w: participant %s does not exist", ErrValidation, id)
		}
	}

	if !req.IsGroup {
		var other string
		for id := range ids {
			if id != userID {
				other = id
			}
		}
		existing, err := s.repo.FindDirect(ctx, userID, other)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	conv := &Conversation{
		ID:      uuid.NewString(),
		IsGroup: req.IsGroup,
		Name:    req.Name,
	}
	if err := s.repo.CreateConversation(ctx, conv, participants); err != nil {
		return nil, false, err
	}

	full, err := s.repo.GetForUser(ctx, conv.ID, userID)
	if err != nil {
		return nil, false, err
	}
	return full, true, nil
}

func (s *Service) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	return s.repo.ListForUser(ctx, userID)
}

func (s *Service) GetConversation(ctx context.Context, userID, conversationID string) (*Conversation, error) {
	conv, err := s.repo.GetForUser(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNotFound
	}
	return conv, nil
}

// SendMessage persists a direct message and bumps the conversation's
// activity timestamp.
func (s *Service) SendMessage(ctx context.Context, userID, conversationID string, req *SendMessageRequest) (*DirectMessage, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" || len(content) > maxContentLength {
		return nil, fmt.Errorf("%w: message must be between 1 and %d characters", ErrValidation, maxContentLength)
	}

	ok, err := s.repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}

	m := &DirectMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        content,
		Attachments:    req.Attachments,
	}
	if err := s.repo.CreateMessage(ctx, m); err != nil {
		return nil, err
	}
	if err := s.repo.BumpConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	metrics.DirectMessagesSent.Inc()
	return s.repo.GetMessageByID(ctx, m.ID)
}

// ListMessages returns the conversation history in chronological order
// and stamps the caller's last-read marker.
func (s *Service) ListMessages(ctx context.Context, userID, conversationID string, limit int, before *time.Time) ([]*DirectMessage, error) {
	ok, err := s.repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	messages, err := s.repo.ListMessages(ctx, conversationID, limit, before)
	if err != nil {
		return nil, err
	}

	// Query order is newest-first; callers get chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	if err := s.repo.TouchLastRead(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return messages, nil
}

// EditMessage updates a direct message. Only the sender may edit, checked
// against the persisted record.
func (s *Service) EditMessage(ctx context.Context, userID, messageID, content string) (*DirectMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxContentLength {
		return nil, fmt.Errorf("%w: message must be between 1 and %d characters", ErrValidation, maxContentLength)
	}

	m, err := s.repo.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	if m.SenderID != userID {
		return nil, ErrNotSender
	}

	return s.repo.UpdateMessageContent(ctx, messageID, content)
}

func (s *Service) DeleteMessage(ctx context.Context, userID, messageID string) error {
	m, err := s.repo.GetMessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrNotFound
	}
	if m.SenderID != userID {
		return ErrNotSender
	}

	return s.repo.DeleteMessage(ctx, messageID)
}

// Search matches direct-message content case-insensitively, scoped to
// conversations the caller participates in.
func (s *Service) Search(ctx context.Context, userID, query, conversationID string, limit int) ([]*DirectMessage, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return nil, fmt.Errorf("%w: search query must be at least 2 characters", ErrValidation)
	}

	if conversationID != "" {
		ok, err := s.repo.IsParticipant(ctx, conversationID, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrForbidden
		}
	}

	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}

	metrics.SearchQueries.Inc()
	return s.repo.Search(ctx, userID, query, conversationID, limit)
}
