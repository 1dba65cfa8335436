package channel

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	channels map[string]*Channel
	roles    map[string]map[string]string // channelID -> userID -> role
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		channels: make(map[string]*Channel),
		roles:    make(map[string]map[string]string),
	}
}

func (f *fakeStore) Create(_ context.Context, ch *Channel, creatorID string) error {
	f.channels[ch.ID] = ch
	f.roles[ch.ID] = map[string]string{creatorID: RoleAdmin}
	return nil
}

func (f *fakeStore) NameExists(_ context.Context, workspaceID, name string) (bool, error) {
	for _, ch := range f.channels {
		if ch.WorkspaceID == workspaceID && ch.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*Channel, error) {
	return f.channels[id], nil
}

func (f *fakeStore) GetVisible(_ context.Context, channelID, userID string) (*Channel, error) {
	ch := f.channels[channelID]
	if ch == nil {
		return nil, nil
	}
	if ch.IsPrivate && f.roles[channelID][userID] == "" {
		return nil, nil
	}
	return ch, nil
}

func (f *fakeStore) ListVisible(_ context.Context, workspaceID, userID string) ([]Channel, error) {
	var out []Channel
	for id, ch := range f.channels {
		if ch.WorkspaceID != workspaceID {
			continue
		}
		if ch.IsPrivate && f.roles[id][userID] == "" {
			continue
		}
		out = append(out, *ch)
	}
	return out, nil
}

func (f *fakeStore) Update(_ context.Context, id string, upd UpdateRequest) (*Channel, error) {
	ch := f.channels[id]
	if ch == nil {
		return nil, nil
	}
	if upd.Name != nil {
		ch.Name = *upd.Name
	}
	if upd.Description != nil {
		ch.Description = upd.Description
	}
	if upd.Archived != nil {
		ch.Archived = *upd.Archived
	}
	return ch, nil
}

func (f *fakeStore) MemberRole(_ context.Context, channelID, userID string) (string, error) {
	return f.roles[channelID][userID], nil
}

func (f *fakeStore) AddMember(_ context.Context, channelID, userID, role string) error {
	f.roles[channelID][userID] = role
	return nil
}

func (f *fakeStore) RemoveMember(_ context.Context, channelID, userID string) error {
	delete(f.roles[channelID], userID)
	return nil
}

func (f *fakeStore) ListMembers(_ context.Context, channelID string) ([]Member, error) {
	var out []Member
	for userID, role := range f.roles[channelID] {
		out = append(out, Member{ChannelID: channelID, UserID: userID, Role: role})
	}
	return out, nil
}

type fakeWorkspaces struct {
	roles map[string]map[string]string // workspaceID -> userID -> role
}

func (f *fakeWorkspaces) MemberRole(_ context.Context, workspaceID, userID string) (string, error) {
	return f.roles[workspaceID][userID], nil
}

func newTestService() (*Service, *fakeStore, *fakeWorkspaces) {
	store := newFakeStore()
	ws := &fakeWorkspaces{roles: map[string]map[string]string{
		"ws-1": {"alice": "OWNER", "bob": "MEMBER"},
	}}
	return NewService(store, ws), store, ws
}

func TestCreateChannel(t *testing.T) {
	svc, store, _ := newTestService()

	ch, err := svc.Create(context.Background(), "alice", "ws-1", &CreateRequest{Name: "random"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if store.roles[ch.ID]["alice"] != RoleAdmin {
		t.Fatalf("creator role = %q, want %q", store.roles[ch.ID]["alice"], RoleAdmin)
	}

	t.Run("invalid name", func(t *testing.T) {
		if _, err := svc.Create(context.Background(), "alice", "ws-1", &CreateRequest{Name: "Bad Name"}); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("non-member forbidden", func(t *testing.T) {
		if _, err := svc.Create(context.Background(), "stranger", "ws-1", &CreateRequest{Name: "ok-name"}); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("duplicate name", func(t *testing.T) {
		if _, err := svc.Create(context.Background(), "alice", "ws-1", &CreateRequest{Name: "random"}); !errors.Is(err, ErrNameTaken) {
			t.Fatalf("expected ErrNameTaken, got %v", err)
		}
	})
}

func TestPrivateChannelInvisible(t *testing.T) {
	svc, _, _ := newTestService()

	ch, err := svc.Create(context.Background(), "alice", "ws-1", &CreateRequest{Name: "secret", IsPrivate: true})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := svc.Get(context.Background(), "bob", ch.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-member of private channel, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "alice", ch.ID); err != nil {
		t.Fatalf("member get failed: %v", err)
	}

	channels, err := svc.List(context.Background(), "bob", "ws-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, c := range channels {
		if c.ID == ch.ID {
			t.Fatal("private channel listed for non-member")
		}
	}
}

func TestUpdateChannelRequiresAdmin(t *testing.T) {
	svc, store, _ := newTestService()

	ch, err := svc.Create(context.Background(), "alice", "ws-1", &CreateRequest{Name: "random"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	store.roles[ch.ID]["bob"] = RoleMember

	name := "renamed"
	if _, err := svc.Update(context.Background(), "bob", ch.ID, UpdateRequest{Name: &name}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for member, got %v", err)
	}
	if _, err := svc.Update(context.Background(), "alice", ch.ID, UpdateRequest{Name: &name}); err != nil {
		t.Fatalf("admin update failed: %v", err)
	}
}

func TestJoinChannel(t *testing.T) {
	svc, _, _ := newTestService()

	ch, err := svc.Create(context.Background(), "alice", "ws-1", &CreateRequest{Name: "random"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := svc.Join(context.Background(), "bob", ch.ID); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if _, err := svc.Join(context.Background(), "bob", ch.ID); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember on second join, got %v", err)
	}
	if _, err := svc.Join(context.Background(), "stranger", ch.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-workspace-member, got %v", err)
	}
	if _, err := svc.Join(context.Background(), "bob", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown channel, got %v", err)
	}
}

func TestLeaveChannel(t *testing.T) {
	svc, store, _ := newTestService()

	general, err := svc.Create(context.Background(), "alice", "ws-1", &CreateRequest{Name: "general"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	random, err := svc.Create(context.Background(), "alice", "ws-1", &CreateRequest{Name: "random"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := svc.Leave(context.Background(), "alice", general.ID); !errors.Is(err, ErrGeneralChannel) {
		t.Fatalf("expected ErrGeneralChannel, got %v", err)
	}
	if err := svc.Leave(context.Background(), "alice", random.ID); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if store.roles[random.ID]["alice"] != "" {
		t.Fatal("member still present after leaving")
	}
}
