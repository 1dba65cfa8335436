package dm

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"
)

type fakeStore struct {
	conversations map[string]*Conversation
	participants  map[string]map[string]bool // conversationID -> userID
	messages      map[string]*DirectMessage
	lastRead      map[string]time.Time
	bumped        map[string]int
	seq           int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*Conversation),
		participants:  make(map[string]map[string]bool),
		messages:      make(map[string]*DirectMessage),
		lastRead:      make(map[string]time.Time),
		bumped:        make(map[string]int),
	}
}

func (f *fakeStore) FindDirect(_ context.Context, userA, userB string) (*Conversation, error) {
	for id, conv := range f.conversations {
		if !conv.IsGroup && f.participants[id][userA] && f.participants[id][userB] {
			return conv, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateConversation(_ context.Context, conv *Conversation, participantIDs []string) error {
	f.conversations[conv.ID] = conv
	f.participants[conv.ID] = make(map[string]bool)
	for _, id := range participantIDs {
		f.participants[conv.ID][id] = true
	}
	return nil
}

func (f *fakeStore) GetForUser(_ context.Context, conversationID, userID string) (*Conversation, error) {
	if !f.participants[conversationID][userID] {
		return nil, nil
	}
	return f.conversations[conversationID], nil
}

func (f *fakeStore) ListForUser(_ context.Context, userID string) ([]*Conversation, error) {
	var out []*Conversation
	for id, conv := range f.conversations {
		if f.participants[id][userID] {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (f *fakeStore) IsParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	return f.participants[conversationID][userID], nil
}

func (f *fakeStore) CreateMessage(_ context.Context, m *DirectMessage) error {
	f.seq++
	m.CreatedAt = time.Unix(int64(f.seq), 0)
	m.UpdatedAt = m.CreatedAt
	f.messages[m.ID] = m
	return nil
}

func (f *fakeStore) GetMessageByID(_ context.Context, id string) (*DirectMessage, error) {
	return f.messages[id], nil
}

func (f *fakeStore) ListMessages(_ context.Context, conversationID string, limit int, before *time.Time) ([]*DirectMessage, error) {
	var out []*DirectMessage
	for _, m := range f.messages {
		if m.ConversationID != conversationID {
			continue
		}
		if before != nil && !m.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) UpdateMessageContent(_ context.Context, id, content string) (*DirectMessage, error) {
	m := f.messages[id]
	if m == nil {
		return nil, nil
	}
	m.Content = content
	m.Edited = true
	return m, nil
}

func (f *fakeStore) DeleteMessage(_ context.Context, id string) error {
	delete(f.messages, id)
	return nil
}

func (f *fakeStore) TouchLastRead(_ context.Context, conversationID, userID string) error {
	f.lastRead[conversationID+"|"+userID] = time.Now()
	return nil
}

func (f *fakeStore) BumpConversation(_ context.Context, conversationID string) error {
	f.bumped[conversationID]++
	return nil
}

func (f *fakeStore) Search(_ context.Context, userID, query, conversationID string, limit int) ([]*DirectMessage, error) {
	var out []*DirectMessage
	for _, m := range f.messages {
		if !f.participants[m.ConversationID][userID] {
			continue
		}
		if conversationID != "" && m.ConversationID != conversationID {
			continue
		}
		if strings.Contains(strings.ToLower(m.Content), strings.ToLower(query)) && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeUsers struct {
	known map[string]bool
}

func (f *fakeUsers) Exists(_ context.Context, userID string) (bool, error) {
	return f.known[userID], nil
}

func newTestService() (*Service, *fakeStore) {
	store := newFakeStore()
	users := &fakeUsers{known: map[string]bool{"alice": true, "bob": true, "carol": true}}
	return NewService(store, users), store
}

func TestCreateConversationIdempotentForPairs(t *testing.T) {
	svc, _ := newTestService()

	first, created, err := svc.CreateConversation(context.Background(), "alice", &CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !created {
		t.Fatal("expected first conversation to be newly created")
	}

	second, created, err := svc.CreateConversation(context.Background(), "alice", &CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if created {
		t.Fatal("expected existing conversation to be reused")
	}
	if second.ID != first.ID {
		t.Fatalf("reused conversation id = %q, want %q", second.ID, first.ID)
	}

	// Initiation from the other side reuses it too.
	third, created, err := svc.CreateConversation(context.Background(), "bob", &CreateConversationRequest{
		ParticipantIDs: []string{"alice"},
	})
	if err != nil {
		t.Fatalf("reverse create failed: %v", err)
	}
	if created || third.ID != first.ID {
		t.Fatalf("reverse create did not reuse: created=%v id=%q", created, third.ID)
	}
}

func TestCreateConversationValidation(t *testing.T) {
	svc, _ := newTestService()

	cases := []struct {
		name string
		req  CreateConversationRequest
	}{
		{"no participants", CreateConversationRequest{}},
		{"self only", CreateConversationRequest{ParticipantIDs: []string{"alice"}}},
		{"group of two", CreateConversationRequest{ParticipantIDs: []string{"bob"}, IsGroup: true}},
		{"direct with three", CreateConversationRequest{ParticipantIDs: []string{"bob", "carol"}}},
		{"unknown participant", CreateConversationRequest{ParticipantIDs: []string{"ghost"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := svc.CreateConversation(context.Background(), "alice", &tc.req); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestGroupConversationsNotDeduplicated(t *testing.T) {
	svc, _ := newTestService()

	req := &CreateConversationRequest{ParticipantIDs: []string{"bob", "carol"}, IsGroup: true}
	first, created, err := svc.CreateConversation(context.Background(), "alice", req)
	if err != nil || !created {
		t.Fatalf("create failed: created=%v err=%v", created, err)
	}
	second, created, err := svc.CreateConversation(context.Background(), "alice", req)
	if err != nil || !created {
		t.Fatalf("second create failed: created=%v err=%v", created, err)
	}
	if first.ID == second.ID {
		t.Fatal("group conversations should not be deduplicated")
	}
}

func TestSendDirectMessage(t *testing.T) {
	svc, store := newTestService()

	conv, _, err := svc.CreateConversation(context.Background(), "alice", &CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	m, err := svc.SendMessage(context.Background(), "alice", conv.ID, &SendMessageRequest{Content: "hi bob"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if m.Content != "hi bob" || m.SenderID != "alice" {
		t.Fatalf("unexpected message: %+v", m)
	}
	if store.bumped[conv.ID] != 1 {
		t.Fatal("conversation activity timestamp not bumped")
	}

	if _, err := svc.SendMessage(context.Background(), "carol", conv.ID, &SendMessageRequest{Content: "intruding"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-participant, got %v", err)
	}
	if _, err := svc.SendMessage(context.Background(), "alice", conv.ID, &SendMessageRequest{Content: "  "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty content, got %v", err)
	}
}

func TestListMessagesChronological(t *testing.T) {
	svc, store := newTestService()

	conv, _, err := svc.CreateConversation(context.Background(), "alice", &CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var ids []string
	for _, content := range []string{"one", "two", "three"} {
		m, err := svc.SendMessage(context.Background(), "alice", conv.ID, &SendMessageRequest{Content: content})
		if err != nil {
			t.Fatalf("send failed: %v", err)
		}
		ids = append(ids, m.ID)
	}

	messages, err := svc.ListMessages(context.Background(), "bob", conv.ID, 0, nil)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, m := range messages {
		if m.ID != ids[i] {
			t.Fatalf("messages not chronological: got %s at %d", m.ID, i)
		}
	}
	if _, ok := store.lastRead[conv.ID+"|bob"]; !ok {
		t.Fatal("last-read marker not stamped")
	}

	if _, err := svc.ListMessages(context.Background(), "carol", conv.ID, 0, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestEditAndDeleteSenderOnly(t *testing.T) {
	svc, store := newTestService()

	conv, _, err := svc.CreateConversation(context.Background(), "alice", &CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	m, err := svc.SendMessage(context.Background(), "alice", conv.ID, &SendMessageRequest{Content: "original"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if _, err := svc.EditMessage(context.Background(), "bob", m.ID, "hijacked"); !errors.Is(err, ErrNotSender) {
		t.Fatalf("expected ErrNotSender, got %v", err)
	}
	edited, err := svc.EditMessage(context.Background(), "alice", m.ID, "fixed")
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if !edited.Edited || edited.Content != "fixed" {
		t.Fatalf("unexpected edited message: %+v", edited)
	}

	if err := svc.DeleteMessage(context.Background(), "bob", m.ID); !errors.Is(err, ErrNotSender) {
		t.Fatalf("expected ErrNotSender, got %v", err)
	}
	if err := svc.DeleteMessage(context.Background(), "alice", m.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if store.messages[m.ID] != nil {
		t.Fatal("message still present after delete")
	}
}

func TestDMSearchScopedToParticipants(t *testing.T) {
	svc, _ := newTestService()

	conv, _, err := svc.CreateConversation(context.Background(), "alice", &CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.SendMessage(context.Background(), "alice", conv.ID, &SendMessageRequest{Content: "secret plans"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	results, err := svc.Search(context.Background(), "bob", "secret", "", 0)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result for participant, got %d", len(results))
	}

	results, err = svc.Search(context.Background(), "carol", "secret", "", 0)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for outsider, got %d", len(results))
	}

	if _, err := svc.Search(context.Background(), "carol", "secret", conv.ID, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for scoped search, got %v", err)
	}
}
