package channel

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrNameTaken      = errors.New("channel name already exists")
	ErrNotFound       = errors.New("channel not found")
	ErrForbidden      = errors.New("not a member")
	ErrAlreadyMember  = errors.New("already a member of this channel")
	ErrGeneralChannel = errors.New("cannot leave general channel")
)

var nameRegex = regexp.MustCompile(`^[a-z0-9-_]{1,80}$`)

// Store is the subset of Repository the service depends on.
type Store interface {
	Create(ctx context.Context, ch *Channel, creatorID string) error
	NameExists(ctx context.Context, workspaceID, name string) (bool, error)
	GetByID(ctx context.Context, id string) (*Channel, error)
	GetVisible(ctx context.Context, channelID, userID string) (*Channel, error)
	ListVisible(ctx context.Context, workspaceID, userID string) ([]Channel, error)
	Update(ctx context.Context, id string, upd UpdateRequest) (*Channel, error)
	MemberRole(ctx context.Context, channelID, userID string) (string, error)
	AddMember(ctx context.Context, channelID, userID, role string) error
	RemoveMember(ctx context.Context, channelID, userID string) error
	ListMembers(ctx context.Context, channelID string) ([]Member, error)
}

// WorkspaceRoles answers whether a user belongs to a workspace.
type WorkspaceRoles interface {
	MemberRole(ctx context.Context, workspaceID, userID string) (string, error)
}

type Service struct {
	repo       Store
	workspaces WorkspaceRoles
}

func NewService(repo Store, workspaces WorkspaceRoles) *Service {
	return &Service{repo: repo, workspaces: workspaces}
}

func (s *Service) Create(ctx context.Context, userID, workspaceID string, req *CreateRequest) (*Channel, error) {
	if !nameRegex.MatchString(req.Name) {
		return nil, fmt.Errorf("%w: name can only contain lowercase letters, numbers, hyphens, and underscores", ErrValidation)
	}

	wsRole, err := s.workspaces.MemberRole(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if wsRole == "" {
		return nil, ErrForbidden
	}

	taken, err := s.repo.NameExists(ctx, workspaceID, req.Name)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrNameTaken
	}

	ch := &Channel{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	}
	if err := s.repo.Create(ctx, ch, userID); err != nil {
		return nil, err
	}

	members, err := s.repo.ListMembers(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	ch.Members = members
	return ch, nil
}

func (s *Service) List(ctx context.Context, userID, workspaceID string) ([]Channel, error) {
	wsRole, err := s.workspaces.MemberRole(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if wsRole == "" {
		return nil, ErrForbidden
	}
	return s.repo.ListVisible(ctx, workspaceID, userID)
}

// Get returns the channel with its roster. Invisible channels (private,
// non-member) report ErrNotFound.
func (s *Service) Get(ctx context.Context, userID, channelID string) (*Channel, error) {
	ch, err := s.repo.GetVisible(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrNotFound
	}

	members, err := s.repo.ListMembers(ctx, channelID)
	if err != nil {
		return nil, err
	}
	ch.Members = members
	return ch, nil
}

func (s *Service) Update(ctx context.Context, userID, channelID string, upd UpdateRequest) (*Channel, error) {
	role, err := s.repo.MemberRole(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if role != RoleAdmin {
		return nil, ErrForbidden
	}

	ch, err := s.repo.Update(ctx, channelID, upd)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrNotFound
	}
	return ch, nil
}

// Join adds the caller to the channel. Workspace membership is required
// and joining twice is rejected rather than ignored.
func (s *Service) Join(ctx context.Context, userID, channelID string) (*Member, error) {
	ch, err := s.repo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrNotFound
	}

	wsRole, err := s.workspaces.MemberRole(ctx, ch.WorkspaceID, userID)
	if err != nil {
		return nil, err
	}
	if wsRole == "" {
		return nil, ErrForbidden
	}

	existing, err := s.repo.MemberRole(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return nil, ErrAlreadyMember
	}

	if err := s.repo.AddMember(ctx, channelID, userID, RoleMember); err != nil {
		return nil, err
	}
	return &Member{ChannelID: channelID, UserID: userID, Role: RoleMember}, nil
}

// Leave removes the caller from the channel. The general channel is
// pinned and cannot be left.
func (s *Service) Leave(ctx context.Context, userID, channelID string) error {
	ch, err := s.repo.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch == nil {
		return ErrNotFound
	}
	if ch.Name == "general" {
		return ErrGeneralChannel
	}
	return s.repo.RemoveMember(ctx, channelID, userID)
}
