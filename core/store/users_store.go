package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleGuard      = "guard"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type UsersStore interface {
	CreateUser(ctx context.Context, u *User) (int64, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsersWithoutGuard(ctx context.Context) ([]User, error)
	SetPassword(ctx context.Context, id int64, hash string) error
	CountUsers(ctx context.Context) (int, error)
}

type usersStore struct {
	db *DB
}

func NewUsersStore(db *DB) UsersStore {
	return &usersStore{db: db}
}

const userColumns = `id, username, name, email, password_hash, role, active, created_at, updated_at`

func (s *usersStore) CreateUser(ctx context.Context, u *User) (int64, error) {
	now := time.Now().UTC()
	role := strings.ToLower(strings.TrimSpace(u.Role))
	if role == "" {
		role = RoleGuard
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users(username, name, email, password_hash, role, active, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?) RETURNING id`,
		u.Username, strings.TrimSpace(u.Name), strings.TrimSpace(u.Email), u.PasswordHash, role, boolToInt(u.Active), now, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	u.ID = id
	u.Role = role
	u.CreatedAt = now
	u.UpdatedAt = now
	return id, nil
}

func (s *usersStore) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row)
}

func (s *usersStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username)
	return scanUser(row)
}

// ListUsersWithoutGuard returns active users that can still be given a guard profile.
func (s *usersStore) ListUsersWithoutGuard(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.name, u.email, u.password_hash, u.role, u.active, u.created_at, u.updated_at
		FROM users u
		LEFT JOIN guards g ON g.user_id=u.id
		WHERE g.id IS NULL AND u.active=1
		ORDER BY u.name ASC, u.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

func (s *usersStore) SetPassword(ctx context.Context, id int64, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=?, updated_at=? WHERE id=?`, hash, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *usersStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var active int
	if err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Active = active == 1
	return &u, nil
}
