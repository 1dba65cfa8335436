package message

import "time"

type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	AuthorID  string    `json:"authorId"`
	ParentID  *string   `json:"parentId"`
	Content   string    `json:"content"`
	Edited    bool      `json:"edited"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Author     *Author     `json:"author,omitempty"`
	Reactions  []Reaction  `json:"reactions"`
	ReplyCount int         `json:"replyCount"`
	Channel    *ChannelRef `json:"channel,omitempty"`
}

// Author is the profile summary embedded in message responses.
type Author struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Avatar    *string `json:"avatar"`
}

type Reaction struct {
	ID        string    `json:"id"`
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`

	User *ReactionUser `json:"user,omitempty"`
}

type ReactionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ChannelRef is attached to search results so clients can link back.
type ChannelRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WorkspaceID string `json:"workspaceId"`
}

type SendRequest struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parentId"`
}

type ListOptions struct {
	Limit  int
	Before *time.Time
	After  *time.Time
}

type SearchOptions struct {
	Query       string
	WorkspaceID string
	ChannelID   string
	Limit       int
}
