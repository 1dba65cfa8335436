package channel

import "time"

// Channel membership roles.
const (
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

type Channel struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	IsPrivate   bool      `json:"isPrivate"`
	Archived    bool      `json:"archived"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Members []Member `json:"members,omitempty"`
}

type Member struct {
	ChannelID  string     `json:"channelId"`
	UserID     string     `json:"userId"`
	Role       string     `json:"role"`
	LastReadAt *time.Time `json:"lastReadAt"`
	CreatedAt  time.Time  `json:"createdAt"`

	User *MemberUser `json:"user,omitempty"`
}

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
	Description *string `json:"description"`
	IsPrivate   bool    `json:"isPrivate"`
}

type UpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Archived    *bool   `json:"archived"`
}
