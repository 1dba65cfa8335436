package message

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

func (r *Repository) CreateMessage(ctx context.Context, m *Message) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, channel_id, author_id, parent_id, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		m.ID, m.ChannelID, m.AuthorID, m.ParentID, m.Content,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

// GetByID returns the bare message row, without embedded author or
// reactions. Used for authorization checks against the persisted record.
func (r *Repository) GetByID(ctx context.Context, id string) (*Message, error) {
	m := &Message{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, channel_id, author_id, parent_id, content, edited,
		       created_at, updated_at
		FROM messages WHERE id = $1`, id,
	).Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.ParentID, &m.Content,
		&m.Edited, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

const fullMessageQuery = `
	SELECT m.id, m.channel_id, m.author_id, m.parent_id, m.content, m.edited,
	       m.created_at, m.updated_at,
	       u.id, u.username, u.first_name, u.last_name, u.avatar,
	       (SELECT COUNT(*) FROM messages r WHERE r.parent_id = m.id)
	FROM messages m
	JOIN users u ON u.id = m.author_id`

func scanFullMessage(rows interface{ Scan(...any) error }) (*Message, error) {
	m := &Message{}
	a := &Author{}
	err := rows.Scan(
		&m.ID, &m.ChannelID, &m.AuthorID, &m.ParentID, &m.Content, &m.Edited,
		&m.CreatedAt, &m.UpdatedAt,
		&a.ID, &a.Username, &a.FirstName, &a.LastName, &a.Avatar,
		&m.ReplyCount,
	)
	if err != nil {
		return nil, err
	}
	m.Author = a
	m.Reactions = []Reaction{}
	return m, nil
}

// GetFull returns the message with author, reactions, and reply count.
func (r *Repository) GetFull(ctx context.Context, id string) (*Message, error) {
	row := r.db.QueryRowContext(ctx, fullMessageQuery+` WHERE m.id = $1`, id)
	m, err := scanFullMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachReactions(ctx, []*Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// List returns top-level channel messages. The query runs newest-first so
// the before cursor pages backwards; callers reverse into chronological
// order.
func (r *Repository) List(ctx context.Context, channelID string, limit int, before, after *time.Time) ([]*Message, error) {
	query := fullMessageQuery + ` WHERE m.channel_id = $1 AND m.parent_id IS NULL`
	args := []any{channelID}

	if before != nil {
		args = append(args, *before)
		query += ` AND m.created_at < $2`
	} else if after != nil {
		args = append(args, *after)
		query += ` AND m.created_at > $2`
	}
	args = append(args, limit)
	if len(args) == 2 {
		query += ` ORDER BY m.created_at DESC LIMIT $2`
	} else {
		query += ` ORDER BY m.created_at DESC LIMIT $3`
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m, err := scanFullMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachReactions(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// ListReplies returns a message's thread replies in chronological order.
func (r *Repository) ListReplies(ctx context.Context, parentID string) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx,
		fullMessageQuery+` WHERE m.parent_id = $1 ORDER BY m.created_at`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var replies []*Message
	for rows.Next() {
		m, err := scanFullMessage(rows)
		if err != nil {
			return nil, err
		}
		replies = append(replies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachReactions(ctx, replies); err != nil {
		return nil, err
	}
	return replies, nil
}

// attachReactions loads reactions for the given messages in one query.
func (r *Repository) attachReactions(ctx context.Context, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}

	ids := make([]string, 0, len(messages))
	byID := make(map[string]*Message, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
		byID[m.ID] = m
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT re.id, re.message_id, re.user_id, re.emoji, re.created_at,
		       u.id, u.username
		FROM reactions re
		JOIN users u ON u.id = re.user_id
		WHERE re.message_id = ANY($1)
		ORDER BY re.created_at`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var re Reaction
		ru := &ReactionUser{}
		if err := rows.Scan(&re.ID, &re.MessageID, &re.UserID, &re.Emoji,
			&re.CreatedAt, &ru.ID, &ru.Username); err != nil {
			return err
		}
		re.User = ru
		if m, ok := byID[re.MessageID]; ok {
			m.Reactions = append(m.Reactions, re)
		}
	}
	return rows.Err()
}

func (r *Repository) UpdateContent(ctx context.Context, id, content string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET content = $2, edited = TRUE, updated_at = NOW()
		WHERE id = $1`, id, content)
	return err
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	return err
}

// IsMember reports channel membership; the access check for reads and
// writes.
func (r *Repository) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM channel_members
		WHERE channel_id = $1 AND user_id = $2)`,
		channelID, userID,
	).Scan(&exists)
	return exists, err
}

// TouchLastRead stamps the member's last-read marker; the unread-count
// source of truth.
func (r *Repository) TouchLastRead(ctx context.Context, channelID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE channel_members SET last_read_at = NOW()
		WHERE channel_id = $1 AND user_id = $2`, channelID, userID)
	return err
}

func (r *Repository) ReactionExists(ctx context.Context, userID, messageID, emoji string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM reactions
		WHERE user_id = $1 AND message_id = $2 AND emoji = $3)`,
		userID, messageID, emoji,
	).Scan(&exists)
	return exists, err
}

func (r *Repository) CreateReaction(ctx context.Context, re *Reaction) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO reactions (id, message_id, user_id, emoji)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		re.ID, re.MessageID, re.UserID, re.Emoji,
	).Scan(&re.CreatedAt)
}

// GetReaction returns the reaction for the triple with the reacting
// user's summary embedded.
func (r *Repository) GetReaction(ctx context.Context, userID, messageID, emoji string) (*Reaction, error) {
	re := &Reaction{}
	ru := &ReactionUser{}
	err := r.db.QueryRowContext(ctx, `
		SELECT re.id, re.message_id, re.user_id, re.emoji, re.created_at,
		       u.id, u.username
		FROM reactions re
		JOIN users u ON u.id = re.user_id
		WHERE re.user_id = $1 AND re.message_id = $2 AND re.emoji = $3`,
		userID, messageID, emoji,
	).Scan(&re.ID, &re.MessageID, &re.UserID, &re.Emoji, &re.CreatedAt,
		&ru.ID, &ru.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	re.User = ru
	return re, nil
}

// DeleteReaction removes the (user, message, emoji) triple and reports
// whether a row existed.
func (r *Repository) DeleteReaction(ctx context.Context, userID, messageID, emoji string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM reactions
		WHERE user_id = $1 AND message_id = $2 AND emoji = $3`,
		userID, messageID, emoji)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Search runs a case-insensitive substring match over messages in channels
// the user is a member of, newest first.
func (r *Repository) Search(ctx context.Context, userID string, opts SearchOptions) ([]*Message, error) {
	query := `
		SELECT m.id, m.channel_id, m.author_id, m.parent_id, m.content, m.edited,
		       m.created_at, m.updated_at,
		       u.id, u.username, u.first_name, u.last_name, u.avatar,
		       (SELECT COUNT(*) FROM messages r WHERE r.parent_id = m.id),
		       c.id, c.name, c.workspace_id
		FROM messages m
		JOIN users u ON u.id = m.author_id
		JOIN channels c ON c.id = m.channel_id
		JOIN channel_members cm ON cm.channel_id = m.channel_id AND cm.user_id = $1
		WHERE m.content ILIKE $2`
	args := []any{userID, "%" + opts.Query + "%"}

	if opts.ChannelID != "" {
		args = append(args, opts.ChannelID)
		query += ` AND m.channel_id = $3`
	} else if opts.WorkspaceID != "" {
		args = append(args, opts.WorkspaceID)
		query += ` AND c.workspace_id = $3`
	}
	args = append(args, opts.Limit)
	if len(args) == 3 {
		query += ` ORDER BY m.created_at DESC LIMIT $3`
	} else {
		query += ` ORDER BY m.created_at DESC LIMIT $4`
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m := &Message{Reactions: []Reaction{}}
		a := &Author{}
		c := &ChannelRef{}
		if err := rows.Scan(
			&m.ID, &m.ChannelID, &m.AuthorID, &m.ParentID, &m.Content, &m.Edited,
			&m.CreatedAt, &m.UpdatedAt,
			&a.ID, &a.Username, &a.FirstName, &a.LastName, &a.Avatar,
			&m.ReplyCount,
			&c.ID, &c.Name, &c.WorkspaceID,
		); err != nil {
			return nil, err
		}
		m.Author = a
		m.Channel = c
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
