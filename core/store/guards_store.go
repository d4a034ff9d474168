package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	GuardStatusActive   = "active"
	GuardStatusInactive = "inactive"
	GuardStatusOnLeave  = "on_leave"
)

var (
	ErrBadgeTaken   = fmt.Errorf("badge_number: %w", ErrDuplicate)
	ErrGuardProfile = fmt.Errorf("user_id: %w", ErrDuplicate)
)

type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type TeamSummary struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Sector string `json:"sector"`
	Shift  string `json:"shift"`
}

type Guard struct {
	ID               int64        `json:"id"`
	UserID           int64        `json:"user_id"`
	TeamID           *int64       `json:"team_id"`
	BadgeNumber      string       `json:"badge_number"`
	Rank             string       `json:"rank"`
	Phone            *string      `json:"phone"`
	EmergencyContact *string      `json:"emergency_contact"`
	Status           string       `json:"status"`
	HireDate         time.Time    `json:"hire_date"`
	Certifications   []string     `json:"certifications"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	User             *UserSummary `json:"user,omitempty"`
	Team             *TeamSummary `json:"team,omitempty"`
}

type GuardsStore interface {
	CreateGuard(ctx context.Context, g *Guard) (int64, error)
	UpdateGuard(ctx context.Context, g *Guard) error
	DeleteGuard(ctx context.Context, id int64) error
	GetGuard(ctx context.Context, id int64) (*Guard, error)
	GetGuardByUserID(ctx context.Context, userID int64) (*Guard, error)
	ListGuards(ctx context.Context, page int) (Page[Guard], error)
	ListTeamGuards(ctx context.Context, teamID int64) ([]Guard, error)
	ListTeammates(ctx context.Context, teamID, excludeGuardID int64) ([]Guard, error)
	CountActiveGuards(ctx context.Context) (int, error)
}

type guardsStore struct {
	db *DB
}

func NewGuardsStore(db *DB) GuardsStore {
	return &guardsStore{db: db}
}

const guardSelect = `
	SELECT g.id, g.user_id, g.team_id, g.badge_number, g.rank, g.phone, g.emergency_contact, g.status, g.hire_date, g.certifications, g.created_at, g.updated_at,
		u.username, u.name, u.email,
		t.name, t.sector, t.shift
	FROM guards g
	JOIN users u ON u.id=g.user_id
	LEFT JOIN teams t ON t.id=g.team_id`

func (s *guardsStore) CreateGuard(ctx context.Context, g *Guard) (int64, error) {
	now := time.Now().UTC()
	status := strings.ToLower(strings.TrimSpace(g.Status))
	if status == "" {
		status = GuardStatusActive
	}
	certs := normalizeSet(g.Certifications)
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO guards(user_id, team_id, badge_number, rank, phone, emergency_contact, status, hire_date, certifications, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?) RETURNING id`,
		g.UserID, nullableID(g.TeamID), strings.TrimSpace(g.BadgeNumber), strings.TrimSpace(g.Rank), nullableString(g.Phone), nullableString(g.EmergencyContact),
		status, g.HireDate.UTC(), listToJSON(certs), now, now).Scan(&id)
	if err != nil {
		return 0, guardWriteError(err)
	}
	g.ID = id
	g.Status = status
	g.Certifications = certs
	g.CreatedAt = now
	g.UpdatedAt = now
	return id, nil
}

func (s *guardsStore) UpdateGuard(ctx context.Context, g *Guard) error {
	now := time.Now().UTC()
	certs := normalizeSet(g.Certifications)
	res, err := s.db.ExecContext(ctx, `
		UPDATE guards SET team_id=?, rank=?, phone=?, emergency_contact=?, status=?, certifications=?, updated_at=?
		WHERE id=?`,
		nullableID(g.TeamID), strings.TrimSpace(g.Rank), nullableString(g.Phone), nullableString(g.EmergencyContact),
		strings.ToLower(strings.TrimSpace(g.Status)), listToJSON(certs), now, g.ID)
	if err != nil {
		return guardWriteError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	g.Certifications = certs
	g.UpdatedAt = now
	return nil
}

func (s *guardsStore) DeleteGuard(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM guards WHERE id=?`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *guardsStore) GetGuard(ctx context.Context, id int64) (*Guard, error) {
	return s.getOne(ctx, guardSelect+` WHERE g.id=?`, id)
}

func (s *guardsStore) GetGuardByUserID(ctx context.Context, userID int64) (*Guard, error) {
	return s.getOne(ctx, guardSelect+` WHERE g.user_id=?`, userID)
}

func (s *guardsStore) getOne(ctx context.Context, query string, arg any) (*Guard, error) {
	g, err := scanGuard(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return g, nil
}

func (s *guardsStore) ListGuards(ctx context.Context, page int) (Page[Guard], error) {
	page = normalizePage(page)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guards`).Scan(&total); err != nil {
		return Page[Guard]{}, err
	}
	items, err := s.list(ctx, guardSelect+` ORDER BY g.created_at DESC, g.id DESC LIMIT ? OFFSET ?`,
		DefaultPageSize, pageOffset(page, DefaultPageSize))
	if err != nil {
		return Page[Guard]{}, err
	}
	return newPage(items, page, DefaultPageSize, total), nil
}

func (s *guardsStore) ListTeamGuards(ctx context.Context, teamID int64) ([]Guard, error) {
	return s.list(ctx, guardSelect+` WHERE g.team_id=? ORDER BY g.id ASC`, teamID)
}

// ListTeammates returns every guard on teamID except excludeGuardID, regardless of status.
func (s *guardsStore) ListTeammates(ctx context.Context, teamID, excludeGuardID int64) ([]Guard, error) {
	return s.list(ctx, guardSelect+` WHERE g.team_id=? AND g.id<>? ORDER BY g.id ASC`, teamID, excludeGuardID)
}

func (s *guardsStore) CountActiveGuards(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guards WHERE status=?`, GuardStatusActive).Scan(&n)
	return n, err
}

func (s *guardsStore) list(ctx context.Context, query string, args ...any) ([]Guard, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Guard{}
	for rows.Next() {
		g, err := scanGuard(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *g)
	}
	return res, rows.Err()
}

func guardWriteError(err error) error {
	switch {
	case uniqueViolationOn(err, "badge_number"):
		return ErrBadgeTaken
	case uniqueViolationOn(err, "user_id"):
		return ErrGuardProfile
	case isUniqueViolation(err):
		return ErrDuplicate
	}
	return err
}

func scanGuard(row rowScanner) (*Guard, error) {
	var g Guard
	var teamID sql.NullInt64
	var phone, emergency sql.NullString
	var certsRaw string
	var u UserSummary
	var teamName, teamSector, teamShift sql.NullString
	if err := row.Scan(&g.ID, &g.UserID, &teamID, &g.BadgeNumber, &g.Rank, &phone, &emergency, &g.Status, &g.HireDate, &certsRaw, &g.CreatedAt, &g.UpdatedAt,
		&u.Username, &u.Name, &u.Email, &teamName, &teamSector, &teamShift); err != nil {
		return nil, err
	}
	g.TeamID = int64Ptr(teamID)
	g.Phone = stringPtr(phone)
	g.EmergencyContact = stringPtr(emergency)
	g.Certifications = listFromJSON(certsRaw)
	u.ID = g.UserID
	g.User = &u
	if g.TeamID != nil && teamName.Valid {
		g.Team = &TeamSummary{ID: *g.TeamID, Name: teamName.String, Sector: teamSector.String, Shift: teamShift.String}
	}
	return &g, nil
}
