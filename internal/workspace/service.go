package workspace

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"teamchat/internal/user"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrSlugTaken     = errors.New("workspace slug already taken")
	ErrNotFound      = errors.New("workspace not found")
	ErrForbidden     = errors.New("insufficient workspace role")
	ErrUserNotFound  = errors.New("user not found")
	ErrAlreadyMember = errors.New("user is already a member")
)

var slugRegex = regexp.MustCompile(`^[a-z0-9-]{1,100}$`)

// Store is the subset of Repository the service depends on.
type Store interface {
	CreateWorkspace(ctx context.Context, ws *Workspace, ownerID, generalChannelID string) error
	SlugExists(ctx context.Context, slug string) (bool, error)
	GetByID(ctx context.Context, id string) (*Workspace, error)
	ListForUser(ctx context.Context, userID string) ([]Workspace, error)
	Update(ctx context.Context, id string, upd UpdateRequest) (*Workspace, error)
	MemberRole(ctx context.Context, workspaceID, userID string) (string, error)
	AddMember(ctx context.Context, workspaceID, userID, role string) error
	AddMemberToGeneral(ctx context.Context, workspaceID, userID string) error
	ListMembers(ctx context.Context, workspaceID string) ([]Member, error)
}

// UserDirectory resolves invited users by email.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

type Service struct {
	repo  Store
	users UserDirectory
}

func NewService(repo Store, users UserDirectory) *Service {
	return &Service{repo: repo, users: users}
}

func (s *Service) Create(ctx context.Context, ownerID string, req *CreateRequest) (*Workspace, error) {
	if req.Name == "" || len(req.Name) > 100 {
		return nil, fmt.Errorf("%w: name must be between 1 and 100 characters", ErrValidation)
	}
	if !slugRegex.MatchString(req.Slug) {
		return nil, fmt.Errorf("%w: slug can only contain lowercase letters, numbers, and hyphens", ErrValidation)
	}

	taken, err := s.repo.SlugExists(ctx, req.Slug)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSlugTaken
	}

	ws := &Workspace{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		InviteOnly:  req.InviteOnly,
	}
	if err := s.repo.CreateWorkspace(ctx, ws, ownerID, uuid.NewString()); err != nil {
		return nil, err
	}

	members, err := s.repo.ListMembers(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	ws.Members = members
	return ws, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Workspace, error) {
	return s.repo.ListForUser(ctx, userID)
}

// Get returns the workspace with its roster. Non-members get ErrNotFound
// rather than ErrForbidden so workspace existence is not leaked.
func (s *Service) Get(ctx context.Context, userID, workspaceID string) (*Workspace, error) {
	role, err := s.repo.MemberRole(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return nil, ErrNotFound
	}

	ws, err := s.repo.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, ErrNotFound
	}

	members, err := s.repo.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	ws.Members = members
	return ws, nil
}

func (s *Service) Update(ctx context.Context, userID, workspaceID string, upd UpdateRequest) (*Workspace, error) {
	role, err := s.repo.MemberRole(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if role != RoleAdmin && role != RoleOwner {
		return nil, ErrForbidden
	}

	ws, err := s.repo.Update(ctx, workspaceID, upd)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, ErrNotFound
	}
	return ws, nil
}

// Invite adds the user with the given email to the workspace and to its
// general channel. Requester must be an admin or owner.
func (s *Service) Invite(ctx context.Context, requesterID, workspaceID string, req *InviteRequest) (*Member, error) {
	role, err := s.repo.MemberRole(ctx, workspaceID, requesterID)
	if err != nil {
		return nil, err
	}
	if role != RoleAdmin && role != RoleOwner {
		return nil, ErrForbidden
	}

	invited, err := s.users.GetByEmail(ctx, req.UserEmail)
	if err != nil {
		return nil, err
	}
	if invited == nil {
		return nil, ErrUserNotFound
	}

	existing, err := s.repo.MemberRole(ctx, workspaceID, invited.ID)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return nil, ErrAlreadyMember
	}

	memberRole := req.Role
	if memberRole != RoleAdmin && memberRole != RoleMember {
		memberRole = RoleMember
	}

	if err := s.repo.AddMember(ctx, workspaceID, invited.ID, memberRole); err != nil {
		return nil, err
	}
	if err := s.repo.AddMemberToGeneral(ctx, workspaceID, invited.ID); err != nil {
		return nil, err
	}

	return &Member{
		WorkspaceID: workspaceID,
		UserID:      invited.ID,
		Role:        memberRole,
		User: &MemberUser{
			ID:        invited.ID,
			Username:  invited.Username,
			FirstName: invited.FirstName,
			LastName:  invited.LastName,
			Avatar:    invited.Avatar,
			Status:    invited.Status,
		},
	}, nil
}
