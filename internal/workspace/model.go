package workspace

import "time"

// Membership roles.
const (
	RoleOwner  = "OWNER"
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

type Workspace struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description"`
	Avatar      *string   `json:"avatar"`
	InviteOnly  bool      `json:"inviteOnly"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Members []Member `json:"members,omitempty"`
}

type Member struct {
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`

	User *MemberUser `json:"user,omitempty"`
}

// MemberUser is the embedded profile summary returned with rosters.
type MemberUser struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Avatar    *string `json:"avatar"`
	Status    string  `json:"status"`
}

type CreateRequest struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
	InviteOnly  bool    `json:"inviteOnly"`
}

type UpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Avatar      *string `json:"avatar"`
	InviteOnly  *bool   `json:"inviteOnly"`
}

type InviteRequest struct {
	UserEmail string `json:"userEmail"`
	Role      string `json:"role"`
}
