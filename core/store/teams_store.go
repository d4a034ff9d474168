package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const (
	ShiftMorning   = "morning"
	ShiftAfternoon = "afternoon"
	ShiftNight     = "night"

	DefaultTeamMaxMembers = 5
)

type Team struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Sector      string    `json:"sector"`
	Shift       string    `json:"shift"`
	MaxMembers  int       `json:"max_members"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	GuardsCount int       `json:"guards_count"`
	Guards      []Guard   `json:"guards,omitempty"`
}

type TeamsStore interface {
	CreateTeam(ctx context.Context, t *Team) (int64, error)
	UpdateTeam(ctx context.Context, t *Team) error
	DeleteTeam(ctx context.Context, id int64) error
	GetTeam(ctx context.Context, id int64) (*Team, error)
	ListTeams(ctx context.Context, page int) (Page[Team], error)
	ListActiveTeams(ctx context.Context) ([]Team, error)
	CountActiveTeams(ctx context.Context) (int, error)
}

type teamsStore struct {
	db *DB
}

func NewTeamsStore(db *DB) TeamsStore {
	return &teamsStore{db: db}
}

const teamSelect = `
	SELECT t.id, t.name, t.description, t.sector, t.shift, t.max_members, t.is_active, t.created_at, t.updated_at,
		(SELECT COUNT(*) FROM guards g WHERE g.team_id=t.id) AS guards_count
	FROM teams t`

func (s *teamsStore) CreateTeam(ctx context.Context, t *Team) (int64, error) {
	now := time.Now().UTC()
	if t.MaxMembers <= 0 {
		t.MaxMembers = DefaultTeamMaxMembers
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO teams(name, description, sector, shift, max_members, is_active, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?) RETURNING id`,
		strings.TrimSpace(t.Name), nullableString(t.Description), strings.TrimSpace(t.Sector), strings.ToLower(t.Shift), t.MaxMembers, boolToInt(t.IsActive), now, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return id, nil
}

func (s *teamsStore) UpdateTeam(ctx context.Context, t *Team) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE teams SET name=?, description=?, sector=?, shift=?, max_members=?, is_active=?, updated_at=?
		WHERE id=?`,
		strings.TrimSpace(t.Name), nullableString(t.Description), strings.TrimSpace(t.Sector), strings.ToLower(t.Shift), t.MaxMembers, boolToInt(t.IsActive), now, t.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	t.UpdatedAt = now
	return nil
}

func (s *teamsStore) DeleteTeam(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM teams WHERE id=?`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *teamsStore) GetTeam(ctx context.Context, id int64) (*Team, error) {
	row := s.db.QueryRowContext(ctx, teamSelect+` WHERE t.id=?`, id)
	t, err := scanTeam(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (s *teamsStore) ListTeams(ctx context.Context, page int) (Page[Team], error) {
	page = normalizePage(page)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM teams`).Scan(&total); err != nil {
		return Page[Team]{}, err
	}
	rows, err := s.db.QueryContext(ctx, teamSelect+` ORDER BY t.created_at DESC, t.id DESC LIMIT ? OFFSET ?`,
		DefaultPageSize, pageOffset(page, DefaultPageSize))
	if err != nil {
		return Page[Team]{}, err
	}
	defer rows.Close()
	items, err := collectTeams(rows)
	if err != nil {
		return Page[Team]{}, err
	}
	return newPage(items, page, DefaultPageSize, total), nil
}

func (s *teamsStore) ListActiveTeams(ctx context.Context) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, teamSelect+` WHERE t.is_active=1 ORDER BY t.name ASC, t.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTeams(rows)
}

func (s *teamsStore) CountActiveTeams(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM teams WHERE is_active=1`).Scan(&n)
	return n, err
}

func collectTeams(rows *sql.Rows) ([]Team, error) {
	res := []Team{}
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

func scanTeam(row rowScanner) (*Team, error) {
	var t Team
	var desc sql.NullString
	var active int
	if err := row.Scan(&t.ID, &t.Name, &desc, &t.Sector, &t.Shift, &t.MaxMembers, &active, &t.CreatedAt, &t.UpdatedAt, &t.GuardsCount); err != nil {
		return nil, err
	}
	t.Description = stringPtr(desc)
	t.IsActive = active == 1
	return &t, nil
}
