package dm

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindDirect returns an existing non-group conversation between the two
// users, so 1:1 conversations are reused instead of duplicated.
func (r *Repository) FindDirect(ctx context.Context, userA, userB string) (*Conversation, error) {
	conv := &Conversation{}
	err := r.db.QueryRowContext(ctx, `
		SELECT c.id, c.is_group, c.name, c.created_at, c.updated_at
		FROM dm_conversations c
		WHERE c.is_group = FALSE
		  AND EXISTS (SELECT 1 FROM dm_participants p
		      WHERE p.conversation_id = c.id AND p.user_id = $1)
		  AND EXISTS (SELECT 1 FROM dm_participants p
		      WHERE p.conversation_id = c.id AND p.user_id = $2)
		LIMIT 1`, userA, userB,
	).Scan(&conv.ID, &conv.IsGroup, &conv.Name, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachParticipants(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// CreateConversation inserts the conversation and all participant rows in
// one transaction.
func (r *Repository) CreateConversation(ctx context.Context, conv *Conversation, participantIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO dm_conversations (id, is_group, name)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		conv.ID, conv.IsGroup, conv.Name,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return err
	}

	for _, userID := range participantIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dm_participants (conversation_id, user_id)
			VALUES ($1, $2)`,
			conv.ID, userID,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Repository) GetForUser(ctx context.Context, conversationID, userID string) (*Conversation, error) {
	conv := &Conversation{}
	err := r.db.QueryRowContext(ctx, `
		SELECT c.id, c.is_group, c.name, c.created_at, c.updated_at
		FROM dm_conversations c
		JOIN dm_participants p ON p.conversation_id = c.id AND p.user_id = $2
		WHERE c.id = $1`, conversationID, userID,
	).Scan(&conv.ID, &conv.IsGroup, &conv.Name, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachParticipants(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListForUser returns the caller's conversations, most recently active
// first, each with its roster, last message, and message count.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]*Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.is_group, c.name, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM direct_messages dm WHERE dm.conversation_id = c.id)
		FROM dm_conversations c
		JOIN dm_participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		conv := &Conversation{}
		if err := rows.Scan(&conv.ID, &conv.IsGroup, &conv.Name,
			&conv.CreatedAt, &conv.UpdatedAt, &conv.MessageCount); err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, conv := range conversations {
		if err := r.attachParticipants(ctx, conv); err != nil {
			return nil, err
		}
		last, err := r.lastMessage(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		conv.LastMessage = last
	}
	return conversations, nil
}

func (r *Repository) attachParticipants(ctx context.Context, conv *Conversation) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.conversation_id, p.user_id, p.last_read_at, p.created_at,
		       u.id, u.username, u.first_name, u.last_name, u.avatar, u.status
		FROM dm_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1
		ORDER BY p.created_at`, conv.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p Participant
		pu := &ParticipantUser{}
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.LastReadAt, &p.CreatedAt,
			&pu.ID, &pu.Username, &pu.FirstName, &pu.LastName, &pu.Avatar, &pu.Status); err != nil {
			return err
		}
		p.User = pu
		conv.Participants = append(conv.Participants, p)
	}
	return rows.Err()
}

const dmQuery = `
	SELECT dm.id, dm.conversation_id, dm.sender_id, dm.content, dm.attachments,
	       dm.edited, dm.created_at, dm.updated_at,
	       u.id, u.username, u.first_name, u.last_name, u.avatar
	FROM direct_messages dm
	JOIN users u ON u.id = dm.sender_id`

func scanDM(row interface{ Scan(...any) error }) (*DirectMessage, error) {
	m := &DirectMessage{}
	s := &Sender{}
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Attachments,
		&m.Edited, &m.CreatedAt, &m.UpdatedAt,
		&s.ID, &s.Username, &s.FirstName, &s.LastName, &s.Avatar,
	)
	if err != nil {
		return nil, err
	}
	m.Sender = s
	return m, nil
}

func (r *Repository) lastMessage(ctx context.Context, conversationID string) (*DirectMessage, error) {
	row := r.db.QueryRowContext(ctx,
		dmQuery+` WHERE dm.conversation_id = $1 ORDER BY dm.created_at DESC LIMIT 1`,
		conversationID)
	m, err := scanDM(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *Repository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM dm_participants
		WHERE conversation_id = $1 AND user_id = $2)`,
		conversationID, userID,
	).Scan(&exists)
	return exists, err
}

func (r *Repository) CreateMessage(ctx context.Context, m *DirectMessage) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO direct_messages (id, conversation_id, sender_id, content, attachments)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		m.ID, m.ConversationID, m.SenderID, m.Content, m.Attachments,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *Repository) GetMessageByID(ctx context.Context, id string) (*DirectMessage, error) {
	row := r.db.QueryRowContext(ctx, dmQuery+` WHERE dm.id = $1`, id)
	m, err := scanDM(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// ListMessages pages newest-first using the before cursor; callers
// reverse into chronological order.
func (r *Repository) ListMessages(ctx context.Context, conversationID string, limit int, before *time.Time) ([]*DirectMessage, error) {
	query := dmQuery + ` WHERE dm.conversation_id = $1`
	args := []any{conversationID}
	if before != nil {
		args = append(args, *before)
		query += ` AND dm.created_at < $2 ORDER BY dm.created_at DESC LIMIT $3`
	} else {
		query += ` ORDER BY dm.created_at DESC LIMIT $2`
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*DirectMessage
	for rows.Next() {
		m, err := scanDM(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *Repository) UpdateMessageContent(ctx context.Context, id, content string) (*DirectMessage, error) {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE direct_messages SET content = $2, edited = TRUE, updated_at = NOW()
		WHERE id = $1`, id, content); err != nil {
		return nil, err
	}
	return r.GetMessageByID(ctx, id)
}

func (r *Repository) DeleteMessage(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM direct_messages WHERE id = $1`, id)
	return err
}

func (r *Repository) TouchLastRead(ctx context.Context, conversationID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dm_participants SET last_read_at = NOW()
		WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID)
	return err
}

// BumpConversation refreshes updated_at so recently active conversations
// sort first.
func (r *Repository) BumpConversation(ctx context.Context, conversationID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dm_conversations SET updated_at = NOW() WHERE id = $1`,
		conversationID)
	return err
}

// Search matches direct messages case-insensitively across the caller's
// conversations, newest first.
func (r *Repository) Search(ctx context.Context, userID, query, conversationID string, limit int) ([]*DirectMessage, error) {
	q := dmQuery + `
		JOIN dm_participants p ON p.conversation_id = dm.conversation_id AND p.user_id = $1
		WHERE dm.content ILIKE $2`
	args := []any{userID, "%" + query + "%"}
	if conversationID != "" {
		args = append(args, conversationID)
		q += ` AND dm.conversation_id = $3 ORDER BY dm.created_at DESC LIMIT $4`
	} else {
		q += ` ORDER BY dm.created_at DESC LIMIT $3`
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*DirectMessage
	for rows.Next() {
		m, err := scanDM(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
