package workspace

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

// CreateWorkspace inserts the workspace, the owner membership, and the
// general channel (with the owner as channel admin) in one transaction.
func (r *Repository) CreateWorkspace(ctx context.Context, ws *Workspace, ownerID, generalChannelID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO workspaces (id, name, slug, description, invite_only)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		ws.ID, ws.Name, ws.Slug, ws.Description, ws.InviteOnly,
	).Scan(&ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		VALUES ($1, $2, $3)`,
		ws.ID, ownerID, RoleOwner,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO channels (id, workspace_id, name, description, is_private)
		VALUES ($1, $2, 'general', 'General discussion', FALSE)`,
		generalChannelID, ws.ID,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO channel_members (channel_id, user_id, role)
		VALUES ($1, $2, 'ADMIN')`,
		generalChannelID, ownerID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM workspaces WHERE slug = $1)`, slug,
	).Scan(&exists)
	return exists, err
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Workspace, error) {
	ws := &Workspace{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, avatar, invite_only, created_at, updated_at
		FROM workspaces WHERE id = $1`, id,
	).Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.Description, &ws.Avatar,
		&ws.InviteOnly, &ws.CreatedAt, &ws.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (r *Repository) ListForUser(ctx context.Context, userID string) ([]Workspace, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.slug, w.description, w.avatar, w.invite_only,
		       w.created_at, w.updated_at
		FROM workspaces w
		JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = $1
		ORDER BY w.created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workspaces []Workspace
	for rows.Next() {
		var ws Workspace
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.Description,
			&ws.Avatar, &ws.InviteOnly, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
			return nil, err
		}
		workspaces = append(workspaces, ws)
	}
	return workspaces, rows.Err()
}

func (r *Repository) Update(ctx context.Context, id string, upd UpdateRequest) (*Workspace, error) {
	ws := &Workspace{}
	err := r.db.QueryRowContext(ctx, `
		UPDATE workspaces SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			avatar = COALESCE($4, avatar),
			invite_only = COALESCE($5, invite_only),
			updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, slug, description, avatar, invite_only, created_at, updated_at`,
		id, upd.Name, upd.Description, upd.Avatar, upd.InviteOnly,
	).Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.Description, &ws.Avatar,
		&ws.InviteOnly, &ws.CreatedAt, &ws.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// MemberRole returns the caller's role in the workspace, or "" when the
// caller is not a member.
func (r *Repository) MemberRole(ctx context.Context, workspaceID, userID string) (string, error) {
	var role string
	err := r.db.QueryRowContext(ctx, `
		SELECT role FROM workspace_members
		WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return role, err
}

func (r *Repository) AddMember(ctx context.Context, workspaceID, userID, role string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		VALUES ($1, $2, $3)`,
		workspaceID, userID, role)
	return err
}

// AddMemberToGeneral joins the user to the workspace's general channel.
func (r *Repository) AddMemberToGeneral(ctx context.Context, workspaceID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO channel_members (channel_id, user_id, role)
		SELECT id, $2, 'MEMBER' FROM channels
		WHERE workspace_id = $1 AND name = 'general'
		ON CONFLICT DO NOTHING`,
		workspaceID, userID)
	return err
}

func (r *Repository) ListMembers(ctx context.Context, workspaceID string) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.workspace_id, m.user_id, m.role, m.created_at,
		       u.id, u.username, u.first_name, u.last_name, u.avatar, u.status
		FROM workspace_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1
		ORDER BY m.created_at`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		mu := &MemberUser{}
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.CreatedAt,
			&mu.ID, &mu.Username, &mu.FirstName, &mu.LastName, &mu.Avatar, &mu.Status); err != nil {
			return nil, err
		}
		m.User = mu
		members = append(members, m)
	}
	return members, rows.Err()
}

// WorkspaceIDsForUser returns the ids of every workspace the user belongs
// to. Used by the realtime gateway to subscribe connections to rooms.
func (r *Repository) WorkspaceIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT workspace_id FROM workspace_members WHERE user_id = $1`, userID)
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
