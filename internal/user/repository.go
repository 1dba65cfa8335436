package user

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

const userColumns = `id, email, username, password, first_name, last_name,
	avatar, custom_status, status, last_seen_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.Password,
		&u.FirstName, &u.LastName, &u.Avatar, &u.CustomStatus,
		&u.Status, &u.LastSeenAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Repository) CreateUser(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, email, username, password, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		u.ID, u.Email, u.Username, u.Password, u.FirstName, u.LastName,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// IdentityTaken reports whether the email or username is already registered.
func (r *Repository) IdentityTaken(ctx context.Context, email, username string) (emailTaken, usernameTaken bool, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE email = $1),
			COUNT(*) FILTER (WHERE username = $2)
		FROM users WHERE email = $1 OR username = $2`
	var byEmail, byUsername int
	if err := r.db.QueryRowContext(ctx, query, email, username).Scan(&byEmail, &byUsername); err != nil {
		return false, false, err
	}
	return byEmail > 0, byUsername > 0, nil
}

func (r *Repository) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*User, error) {
	query := `
		UPDATE users SET
			first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			avatar = COALESCE($4, avatar),
			custom_status = COALESCE($5, custom_status),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	row := r.db.QueryRowContext(ctx, query,
		id, upd.FirstName, upd.LastName, upd.Avatar, upd.CustomStatus)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (r *Repository) SetStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET status = $2, last_seen_at = $3, updated_at = NOW()
		WHERE id = $1`, id, status, time.Now())
	return err
}

// ListUsers returns the user directory ordered by username.
func (r *Repository) ListUsers(ctx context.Context, limit int) ([]User, error) {
	q := `
		SELECT id, email, username, first_name, last_name, avatar, status
		FROM users
		ORDER BY username
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.FirstName,
			&u.LastName, &u.Avatar, &u.Status); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *Repository) SearchUsers(ctx context.Context, query string, limit int) ([]User, error) {
	q := `
		SELECT id, email, username, first_name, last_name, avatar, status
		FROM users
		WHERE username ILIKE $1 OR first_name ILIKE $1 OR last_name ILIKE $1
		ORDER BY username
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.FirstName,
			&u.LastName, &u.Avatar, &u.Status); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
