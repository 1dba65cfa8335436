package workspace

import (
	"context"
	"errors"
	"testing"

	"teamchat/internal/user"
)

type fakeStore struct {
	workspaces     map[string]*Workspace
	slugs          map[string]bool
	roles          map[string]map[string]string // workspaceID -> userID -> role
	generalMembers map[string]map[string]bool   // workspaceID -> userID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		workspaces:     make(map[string]*Workspace),
		slugs:          make(map[string]bool),
		roles:          make(map[string]map[string]string),
		generalMembers: make(map[string]map[string]bool),
	}
}

func (f *fakeStore) CreateWorkspace(_ context.Context, ws *Workspace, ownerID, _ string) error {
	f.workspaces[ws.ID] = ws
	f.slugs[ws.Slug] = true
	f.roles[ws.ID] = map[string]string{ownerID: RoleOwner}
	f.generalMembers[ws.ID] = map[string]bool{ownerID: true}
	return nil
}

func (f *fakeStore) SlugExists(_ context.Context, slug string) (bool, error) {
	return f.slugs[slug], nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*Workspace, error) {
	return f.workspaces[id], nil
}

func (f *fakeStore) ListForUser(_ context.Context, userID string) ([]Workspace, error) {
	var out []Workspace
	for id, roles := range f.roles {
		if roles[userID] != "" {
			out = append(out, *f.workspaces[id])
		}
	}
	return out, nil
}

func (f *fakeStore) Update(_ context.Context, id string, upd UpdateRequest) (*Workspace, error) {
	ws := f.workspaces[id]
	if ws == nil {
		return nil, nil
	}
	if upd.Name != nil {
		ws.Name = *upd.Name
	}
	if upd.Description != nil {
		ws.Description = upd.Description
	}
	return ws, nil
}

func (f *fakeStore) MemberRole(_ context.Context, workspaceID, userID string) (string, error) {
	return f.roles[workspaceID][userID], nil
}

func (f *fakeStore) AddMember(_ context.Context, workspaceID, userID, role string) error {
	f.roles[workspaceID][userID] = role
	return nil
}

func (f *fakeStore) AddMemberToGeneral(_ context.Context, workspaceID, userID string) error {
	f.generalMembers[workspaceID][userID] = true
	return nil
}

func (f *fakeStore) ListMembers(_ context.Context, workspaceID string) ([]Member, error) {
	var out []Member
	for userID, role := range f.roles[workspaceID] {
		out = append(out, Member{WorkspaceID: workspaceID, UserID: userID, Role: role})
	}
	return out, nil
}

type fakeDirectory struct {
	byEmail map[string]*user.User
}

func (f *fakeDirectory) GetByEmail(_ context.Context, email string) (*user.User, error) {
	return f.byEmail[email], nil
}

func newTestService() (*Service, *fakeStore, *fakeDirectory) {
	store := newFakeStore()
	dir := &fakeDirectory{byEmail: make(map[string]*user.User)}
	return NewService(store, dir), store, dir
}

func TestCreateWorkspace(t *testing.T) {
	svc, store, _ := newTestService()

	ws, err := svc.Create(context.Background(), "owner-1", &CreateRequest{Name: "Acme", Slug: "acme"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if store.roles[ws.ID]["owner-1"] != RoleOwner {
		t.Fatalf("creator role = %q, want %q", store.roles[ws.ID]["owner-1"], RoleOwner)
	}
	if !store.generalMembers[ws.ID]["owner-1"] {
		t.Fatal("creator not added to the general channel")
	}
	if len(ws.Members) != 1 {
		t.Fatalf("expected 1 member on the created workspace, got %d", len(ws.Members))
	}
}

func TestCreateWorkspaceValidation(t *testing.T) {
	svc, _, _ := newTestService()

	cases := []struct {
		name string
		req  CreateRequest
	}{
		{"empty name", CreateRequest{Name: "", Slug: "acme"}},
		{"uppercase slug", CreateRequest{Name: "Acme", Slug: "Acme"}},
		{"slug with spaces", CreateRequest{Name: "Acme", Slug: "ac me"}},
		{"empty slug", CreateRequest{Name: "Acme", Slug: ""}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), "owner-1", &tc.req); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateWorkspaceSlugConflict(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.Create(context.Background(), "owner-1", &CreateRequest{Name: "Acme", Slug: "acme"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	_, err := svc.Create(context.Background(), "owner-2", &CreateRequest{Name: "Other", Slug: "acme"})
	if !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("expected ErrSlugTaken, got %v", err)
	}
}

func TestGetWorkspaceHidesExistence(t *testing.T) {
	svc, _, _ := newTestService()

	ws, err := svc.Create(context.Background(), "owner-1", &CreateRequest{Name: "Acme", Slug: "acme"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := svc.Get(context.Background(), "stranger", ws.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-member, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "owner-1", ws.ID); err != nil {
		t.Fatalf("member get failed: %v", err)
	}
}

func TestUpdateWorkspaceRequiresAdmin(t *testing.T) {
	svc, store, _ := newTestService()

	ws, err := svc.Create(context.Background(), "owner-1", &CreateRequest{Name: "Acme", Slug: "acme"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	store.roles[ws.ID]["member-1"] = RoleMember

	name := "Renamed"
	if _, err := svc.Update(context.Background(), "member-1", ws.ID, UpdateRequest{Name: &name}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for member, got %v", err)
	}

	updated, err := svc.Update(context.Background(), "owner-1", ws.ID, UpdateRequest{Name: &name})
	if err != nil {
		t.Fatalf("owner update failed: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Fatalf("name = %q, want Renamed", updated.Name)
	}
}

func TestInvite(t *testing.T) {
	svc, store, dir := newTestService()

	ws, err := svc.Create(context.Background(), "owner-1", &CreateRequest{Name: "Acme", Slug: "acme"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	dir.byEmail["bob@example.com"] = &user.User{ID: "bob", Email: "bob@example.com", Username: "bob"}
	store.roles[ws.ID]["member-1"] = RoleMember

	t.Run("requires admin or owner", func(t *testing.T) {
		_, err := svc.Invite(context.Background(), "member-1", ws.ID, &InviteRequest{UserEmail: "bob@example.com"})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Invite(context.Background(), "owner-1", ws.ID, &InviteRequest{UserEmail: "nobody@example.com"})
		if !errors.Is(err, ErrUserNotFound) {
			t.Fatalf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("defaults to member role and joins general", func(t *testing.T) {
		member, err := svc.Invite(context.Background(), "owner-1", ws.ID, &InviteRequest{UserEmail: "bob@example.com", Role: "OWNER"})
		if err != nil {
			t.Fatalf("invite failed: %v", err)
		}
		if member.Role != RoleMember {
			t.Fatalf("role = %q, want %q", member.Role, RoleMember)
		}
		if !store.generalMembers[ws.ID]["bob"] {
			t.Fatal("invited user not added to the general channel")
		}
	})

	t.Run("duplicate member", func(t *testing.T) {
		_, err := svc.Invite(context.Background(), "owner-1", ws.ID, &InviteRequest{UserEmail: "bob@example.com"})
		if !errors.Is(err, ErrAlreadyMember) {
			t.Fatalf("expected ErrAlreadyMember, got %v", err)
		}
	})
}
