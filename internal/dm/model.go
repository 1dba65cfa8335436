package dm

import "time"

type Conversation struct {
	ID        string    `json:"id"`
	IsGroup   bool      `json:"isGroup"`
	Name      *string   `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Participants []Participant  `json:"participants,omitempty"`
	LastMessage  *DirectMessage `json:"lastMessage,omitempty"`
	MessageCount int            `json:"messageCount"`
}

type Participant struct {
	ConversationID string     `json:"conversationId"`
	UserID         string     `json:"userId"`
	LastReadAt     *time.Time `json:"lastReadAt"`
	CreatedAt      time.Time  `json:"createdAt"`

	User *ParticipantUser `json:"user,omitempty"`
}

type ParticipantUser struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Avatar    *string `json:"avatar"`
	Status    string  `json:"status"`
}

// DirectMessage mirrors a channel message without threading or reactions.
type DirectMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	Attachments    *string   `json:"attachments"`
	Edited         bool      `json:"edited"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	Sender *Sender `json:"sender,omitempty"`
}

type Sender struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Avatar    *string `json:"avatar"`
}

type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participantIds"`
	IsGroup        bool     `json:"isGroup"`
	Name           *string  `json:"name"`
}

type SendMessageRequest struct {
	Content     string  `json:"content"`
	Attachments *string `json:"attachments"`
}
