package message

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
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("message not found")
	ErrForbidden        = errors.New("no access")
	ErrNotAuthor        = errors.New("not the author")
	ErrReactionExists   = errors.New("reaction already exists")
	ErrReactionNotFound = errors.New("reaction not found")
)

const (
	maxContentLength = 4000
	defaultPageSize  = 50
	maxPageSize      = 100
	maxSearchResults = 50
)

// Store is the subset of Repository the service depends on.
type Store interface {
	CreateMessage(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	GetFull(ctx context.Context, id string) (*Message, error)
	List(ctx context.Context, channelID string, limit int, before, after *time.Time) ([]*Message, error)
	ListReplies(ctx context.Context, parentID string) ([]*Message, error)
	UpdateContent(ctx context.Context, id, content string) error
	Delete(ctx context.Context, id string) error
	IsMember(ctx context.Context, channelID, userID string) (bool, error)
	TouchLastRead(ctx context.Context, channelID, userID string) error
	ReactionExists(ctx context.Context, userID, messageID, emoji string) (bool, error)
	CreateReaction(ctx context.Context, re *Reaction) error
	GetReaction(ctx context.Context, userID, messageID, emoji string) (*Reaction, error)
	DeleteReaction(ctx context.Context, userID, messageID, emoji string) (bool, error)
	Search(ctx context.Context, userID string, opts SearchOptions) ([]*Message, error)
}

// WorkspaceRoles answers workspace membership for search scoping.
type WorkspaceRoles interface {
	MemberRole(ctx context.Context, workspaceID, userID string) (string, error)
}

// Broadcaster fans an event out to a channel room. Implemented by the
// realtime hub; REST-originated writes publish the same events as
// socket-originated ones.
type Broadcaster interface {
	BroadcastToChannel(channelID, event string, data interface{})
}

type Service struct {
	repo        Store
	workspaces  WorkspaceRoles
	broadcaster Broadcaster
}

func NewService(repo Store, workspaces WorkspaceRoles) *Service {
	return &Service{repo: repo, workspaces: workspaces}
}

// SetBroadcaster wires the realtime hub in after construction. The hub
// itself depends on this service, so the cycle is broken with a setter.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

func (s *Service) broadcast(channelID, event string, data interface{}) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToChannel(channelID, event, data)
	}
}

// Send persists a channel message and broadcasts message:new to the
// channel room.
func (s *Service) Send(ctx context.Context, authorID, channelID string, req *SendRequest) (*Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" || len(content) > maxContentLength {
		return nil, fmt.Errorf("%w: message must be between 1 and %d characters", ErrValidation, maxContentLength)
	}

	member, err := s.repo.IsMember(ctx, channelID, authorID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrForbidden
	}

	if req.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, *req.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.ChannelID != channelID {
			return nil, fmt.Errorf("%w: parent message not found in channel", ErrValidation)
		}
		// One level of threading only.
		if parent.ParentID != nil {
			return nil, fmt.Errorf("%w: cannot reply to a thread reply", ErrValidation)
		}
	}

	m := &Message{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		AuthorID:  authorID,
		ParentID:  req.ParentID,
		Content:   content,
	}
	if err := s.repo.CreateMessage(ctx, m); err != nil {
		return nil, err
	}

	full, err := s.repo.GetFull(ctx, m.ID)
	if err != nil {
		return nil, err
	}

	metrics.MessagesSent.Inc()
	s.broadcast(channelID, "message:new", full)
	return full, nil
}

// List returns top-level channel messages in chronological order and
// stamps the caller's last-read marker.
func (s *Service) List(ctx context.Context, userID, channelID string, opts ListOptions) ([]*Message, error) {
	member, err := s.repo.IsMember(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrForbidden
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	messages, err := s.repo.List(ctx, channelID, limit, opts.Before, opts.After)
	if err != nil {
		return nil, err
	}

	// Query order is newest-first; callers get chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	if err := s.repo.TouchLastRead(ctx, channelID, userID); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkRead stamps the caller's last-read marker without fetching any
// messages. Clients call this when a channel is already rendered.
func (s *Service) MarkRead(ctx context.Context, userID, channelID string) error {
	member, err := s.repo.IsMember(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if !member {
		return ErrForbidden
	}
	return s.repo.TouchLastRead(ctx, channelID, userID)
}

func (s *Service) Replies(ctx context.Context, userID, messageID string) ([]*Message, error) {
	parent, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, ErrNotFound
	}

	member, err := s.repo.IsMember(ctx, parent.ChannelID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrForbidden
	}

	return s.repo.ListReplies(ctx, messageID)
}

// Edit updates a message's content. Authorship is checked against the
// persisted record, never client-supplied identity. The edited flag is
// set and never cleared.
func (s *Service) Edit(ctx context.Context, userID, messageID, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxContentLength {
		return nil, fmt.Errorf("%w: message must be between 1 and %d characters", ErrValidation, maxContentLength)
	}

	m, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	if m.AuthorID != userID {
		return nil, ErrNotAuthor
	}

	if err := s.repo.UpdateContent(ctx, messageID, content); err != nil {
		return nil, err
	}

	full, err := s.repo.GetFull(ctx, messageID)
	if err != nil {
		return nil, err
	}

	s.broadcast(m.ChannelID, "message:updated", full)
	return full, nil
}

func (s *Service) Delete(ctx context.Context, userID, messageID string) error {
	m, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrNotFound
	}
	if m.AuthorID != userID {
		return ErrNotAuthor
	}

	if err := s.repo.Delete(ctx, messageID); err != nil {
		return err
	}

	s.broadcast(m.ChannelID, "message:deleted", map[string]string{
		"messageId": messageID,
		"channelId": m.ChannelID,
	})
	return nil
}

// AddReaction enforces at most one reaction per (user, message, emoji)
// triple.
func (s *Service) AddReaction(ctx context.Context, userID, messageID, emoji string) (*Reaction, error) {
	if emoji == "" {
		return nil, fmt.Errorf("%w: emoji is required", ErrValidation)
	}

	m, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}

	exists, err := s.repo.ReactionExists(ctx, userID, messageID, emoji)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrReactionExists
	}

	re := &Reaction{
		ID:        uuid.NewString(),
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	}
	if err := s.repo.CreateReaction(ctx, re); err != nil {
		return nil, err
	}

	enriched, err := s.repo.GetReaction(ctx, userID, messageID, emoji)
	if err != nil {
		return nil, err
	}
	if enriched != nil {
		re = enriched
	}

	s.broadcast(m.ChannelID, "reaction:added", map[string]interface{}{
		"messageId": messageID,
		"reaction":  re,
	})
	return re, nil
}

func (s *Service) RemoveReaction(ctx context.Context, userID, messageID, emoji string) error {
	m, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrNotFound
	}

	deleted, err := s.repo.DeleteReaction(ctx, userID, messageID, emoji)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrReactionNotFound
	}

	s.broadcast(m.ChannelID, "reaction:removed", map[string]string{
		"messageId": messageID,
		"userId":    userID,
		"emoji":     emoji,
	})
	return nil
}

// Search matches message content case-insensitively, scoped to channels
// the caller is a member of. Single page, recency ordered.
func (s *Service) Search(ctx context.Context, userID string, opts SearchOptions) ([]*Message, error) {
	opts.Query = strings.TrimSpace(opts.Query)
	if len(opts.Query) < 2 {
		return nil, fmt.Errorf("%w: search query must be at least 2 characters", ErrValidation)
	}

	if opts.ChannelID != "" {
		member, err := s.repo.IsMember(ctx, opts.ChannelID, userID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrForbidden
		}
	} else if opts.WorkspaceID != "" {
		role, err := s.workspaces.MemberRole(ctx, opts.WorkspaceID, userID)
		if err != nil {
			return nil, err
		}
		if role == "" {
			return nil, ErrForbidden
		}
	}

	if opts.Limit <= 0 || opts.Limit > maxSearchResults {
		opts.Limit = maxSearchResults
	}

	metrics.SearchQueries.Inc()
	return s.repo.Search(ctx, userID, opts)
}
