package channel

import (
	"context"
	"database/sql"
	"errors"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the channel and its creator as channel admin in one
// transaction.
func (r *Repository) Create(ctx context.Context, ch *Channel, creatorID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO channels (id, workspace_id, name, description, is_private)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		ch.ID, ch.WorkspaceID, ch.Name, ch.Description, ch.IsPrivate,
	).Scan(&ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO channel_members (channel_id, user_id, role)
		VALUES ($1, $2, 'ADMIN')`,
		ch.ID, creatorID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) NameExists(ctx context.Context, workspaceID, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM channels WHERE workspace_id = $1 AND name = $2)`,
		workspaceID, name,
	).Scan(&exists)
	return exists, err
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Channel, error) {
	ch := &Channel{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, name, description, is_private, archived,
		       created_at, updated_at
		FROM channels WHERE id = $1`, id,
	).Scan(&ch.ID, &ch.WorkspaceID, &ch.Name, &ch.Description,
		&ch.IsPrivate, &ch.Archived, &ch.CreatedAt, &ch.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// ListVisible returns the workspace's unarchived channels that are public
// or that the user is an explicit member of.
func (r *Repository) ListVisible(ctx context.Context, workspaceID, userID string) ([]Channel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.workspace_id, c.name, c.description, c.is_private,
		       c.archived, c.created_at, c.updated_at
		FROM channels c
		WHERE c.workspace_id = $1
		  AND c.archived = FALSE
		  AND (c.is_private = FALSE OR EXISTS (
		      SELECT 1 FROM channel_members m
		      WHERE m.channel_id = c.id AND m.user_id = $2))
		ORDER BY c.created_at`, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.ID, &ch.WorkspaceID, &ch.Name, &ch.Description,
			&ch.IsPrivate, &ch.Archived, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// GetVisible returns the channel only when it is public or the user is a
// member, nil otherwise.
func (r *Repository) GetVisible(ctx context.Context, channelID, userID string) (*Channel, error) {
	ch := &Channel{}
	err := r.db.QueryRowContext(ctx, `
		SELECT c.id, c.workspace_id, c.name, c.description, c.is_private,
		       c.archived, c.created_at, c.updated_at
		FROM channels c
		WHERE c.id = $1
		  AND (c.is_private = FALSE OR EXISTS (
		      SELECT 1 FROM channel_members m
		      WHERE m.channel_id = c.id AND m.user_id = $2))`,
		channelID, userID,
	).Scan(&ch.ID, &ch.WorkspaceID, &ch.Name, &ch.Description,
		&ch.IsPrivate, &ch.Archived, &ch.CreatedAt, &ch.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// IsVisible reports whether the channel exists and is either public or
// one the user is an explicit member of. Used by the realtime gateway
// for subscription changes, where public channels may be previewed
// without joining.
func (r *Repository) IsVisible(ctx context.Context, channelID, userID string) (bool, error) {
	var visible bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM channels c
			WHERE c.id = $1
			  AND (c.is_private = FALSE OR EXISTS (
			      SELECT 1 FROM channel_members m
			      WHERE m.channel_id = c.id AND m.user_id = $2)))`,
		channelID, userID,
	).Scan(&visible)
	return visible, err
}

func (r *Repository) Update(ctx context.Context, id string, upd UpdateRequest) (*Channel, error) {
	ch := &Channel{}
	err := r.db.QueryRowContext(ctx, `
		UPDATE channels SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			archived = COALESCE($4, archived),
			updated_at = NOW()
		WHERE id = $1
		RETURNING id, workspace_id, name, description, is_private, archived,
		          created_at, updated_at`,
		id, upd.Name, upd.Description, upd.Archived,
	).Scan(&ch.ID, &ch.WorkspaceID, &ch.Name, &ch.Description,
		&ch.IsPrivate, &ch.Archived, &ch.CreatedAt, &ch.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// MemberRole returns the user's channel role, or "" for non-members.
func (r *Repository) MemberRole(ctx context.Context, channelID, userID string) (string, error) {
	var role string
	err := r.db.QueryRowContext(ctx, `
		SELECT role FROM channel_members
		WHERE channel_id = $1 AND user_id = $2`,
		channelID, userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return role, err
}

func (r *Repository) AddMember(ctx context.Context, channelID, userID, role string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO channel_members (channel_id, user_id, role)
		VALUES ($1, $2, $3)`,
		channelID, userID, role)
	return err
}

func (r *Repository) RemoveMember(ctx context.Context, channelID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2`,
		channelID, userID)
	return err
}

func (r *Repository) ListMembers(ctx context.Context, channelID string) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.channel_id, m.user_id, m.role, m.last_read_at, m.created_at,
		       u.id, u.username, u.first_name, u.last_name, u.avatar, u.status
		FROM channel_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.channel_id = $1
		ORDER BY m.created_at`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		mu := &MemberUser{}
		if err := rows.Scan(&m.ChannelID, &m.UserID, &m.Role, &m.LastReadAt, &m.CreatedAt,
			&mu.ID, &mu.Username, &mu.FirstName, &mu.LastName, &mu.Avatar, &mu.Status); err != nil {
			return nil, err
		}
		m.User = mu
		members = append(members, m)
	}
	return members, rows.Err()
}

// ChannelIDsForUser returns the ids of every channel the user is a member
// of. Used by the realtime gateway to subscribe connections to rooms.
func (r *Repository) ChannelIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT channel_id FROM channel_members WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
