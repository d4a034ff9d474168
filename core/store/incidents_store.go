package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	IncidentStatusOpen          = "open"
	IncidentStatusInvestigating = "investigating"
	IncidentStatusResolved      = "resolved"
	IncidentStatusClosed        = "closed"

	maxNumberAttempts = 5
)

type Incident struct {
	ID               int64           `json:"id"`
	IncidentNumber   string          `json:"incident_number"`
	ReportedBy       int64           `json:"reported_by"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Type             string          `json:"type"`
	Priority         string          `json:"priority"`
	Status           string          `json:"status"`
	Location         string          `json:"location"`
	Latitude         *float64        `json:"latitude"`
	Longitude        *float64        `json:"longitude"`
	OccurredAt       time.Time       `json:"occurred_at"`
	InvolvedParties  []string        `json:"involved_parties"`
	Witnesses        []string        `json:"witnesses"`
	ActionsTaken     *string         `json:"actions_taken"`
	FollowUpRequired *string         `json:"follow_up_required"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Reporter         *Reporter       `json:"reporter,omitempty"`
	Media            []IncidentMedia `json:"media,omitempty"`
}

type IncidentMedia struct {
	ID           int64     `json:"id"`
	IncidentID   int64     `json:"incident_id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	Type         string    `json:"type"`
	FileSize     int64     `json:"file_size"`
	FilePath     string    `json:"file_path"`
	Description  *string   `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

// Reporter is the reporting guard as embedded in incident payloads.
type Reporter struct {
	ID          int64        `json:"id"`
	UserID      int64        `json:"user_id"`
	TeamID      *int64       `json:"team_id"`
	BadgeNumber string       `json:"badge_number"`
	Rank        string       `json:"rank"`
	Status      string       `json:"status"`
	User        *UserSummary `json:"user"`
	Team        *TeamSummary `json:"team"`
}

type IncidentFilter struct {
	Status     string
	Priority   string
	Type       string
	ReportedBy int64
	Page       int
}

// IncidentUpdate carries the mutable fields of an incident. Nil pointers leave the column untouched.
type IncidentUpdate struct {
	Status           string
	ActionsTaken     *string
	FollowUpRequired *string
}

type IncidentStats struct {
	Total        int `json:"total_incidents"`
	Open         int `json:"open_incidents"`
	HighPriority int `json:"high_priority_incidents"`
}

// IncidentNumberer formats an incident number from the year count before the new incident.
type IncidentNumberer func(currentCount int64, now time.Time) (string, error)

type IncidentsStore interface {
	CreateIncident(ctx context.Context, incident *Incident, now time.Time, number IncidentNumberer) (int64, error)
	UpdateIncident(ctx context.Context, id int64, upd IncidentUpdate, now time.Time) (previousStatus string, err error)
	GetIncident(ctx context.Context, id int64) (*Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) (Page[Incident], error)
	ListRecentIncidents(ctx context.Context, limit int) ([]Incident, error)
	ListIncidentsByReporter(ctx context.Context, guardID int64, limit int) ([]Incident, error)
	IncidentStats(ctx context.Context) (IncidentStats, error)

	AddIncidentMedia(ctx context.Context, m *IncidentMedia) (int64, error)
	ListIncidentMedia(ctx context.Context, incidentID int64) ([]IncidentMedia, error)
}

type incidentsStore struct {
	db *DB
}

func NewIncidentsStore(db *DB) IncidentsStore {
	return &incidentsStore{db: db}
}

const incidentSelect = `
	SELECT i.id, i.incident_number, i.reported_by, i.title, i.description, i.type, i.priority, i.status, i.location, i.latitude, i.longitude,
		i.occurred_at, i.involved_parties, i.witnesses, i.actions_taken, i.follow_up_required, i.created_at, i.updated_at,
		g.user_id, g.team_id, g.badge_number, g.rank, g.status, u.username, u.name, u.email, t.name, t.sector, t.shift
	FROM incidents i
	JOIN guards g ON g.id=i.reported_by
	JOIN users u ON u.id=g.user_id
	LEFT JOIN teams t ON t.id=g.team_id`

// CreateIncident inserts the incident and advances the per-year counter in one
// transaction. A collision on incident_number resyncs the counter from the
// highest stored number for the year and retries.
func (s *incidentsStore) CreateIncident(ctx context.Context, incident *Incident, now time.Time, number IncidentNumberer) (int64, error) {
	now = now.UTC()
	year := now.Year()
	var lastErr error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		id, err := s.createIncidentTx(ctx, incident, now, year, number)
		if err == nil {
			return id, nil
		}
		if !uniqueViolationOn(err, "incident_number") {
			return 0, err
		}
		lastErr = err
		if err := s.resyncCounter(ctx, year); err != nil {
			return 0, err
		}
	}
	return 0, fmt.Errorf("allocate incident number after %d attempts: %w", maxNumberAttempts, lastErr)
}

func (s *incidentsStore) createIncidentTx(ctx context.Context, incident *Incident, now time.Time, year int, number IncidentNumberer) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	seq, err := nextIncidentSeqTx(ctx, tx, year)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	incNumber, err := number(seq-1, now)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	parties := normalizeList(incident.InvolvedParties)
	witnesses := normalizeList(incident.Witnesses)
	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO incidents(reported_by, incident_number, title, description, type, priority, status, location, latitude, longitude, occurred_at, involved_parties, witnesses, actions_taken, follow_up_required, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?) RETURNING id`,
		incident.ReportedBy, incNumber, incident.Title, incident.Description, incident.Type, incident.Priority, IncidentStatusOpen, incident.Location,
		nullableFloat(incident.Latitude), nullableFloat(incident.Longitude), incident.OccurredAt.UTC(), listToJSON(parties), listToJSON(witnesses),
		nullableString(incident.ActionsTaken), nullableString(incident.FollowUpRequired), now, now).Scan(&id)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	incident.ID = id
	incident.IncidentNumber = incNumber
	incident.Status = IncidentStatusOpen
	incident.InvolvedParties = parties
	incident.Witnesses = witnesses
	incident.CreatedAt = now
	incident.UpdatedAt = now
	return id, nil
}

func nextIncidentSeqTx(ctx context.Context, tx *Tx, year int) (int64, error) {
	var seq int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO incident_counters(year, seq)
		VALUES(?,1)
		ON CONFLICT (year)
		DO UPDATE SET seq = incident_counters.seq + 1
		RETURNING seq
	`, year).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *incidentsStore) resyncCounter(ctx context.Context, year int) error {
	prefix := fmt.Sprintf("INC-%04d-", year)
	var highest sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(incident_number) FROM incidents WHERE incident_number LIKE ?`, prefix+"%").Scan(&highest); err != nil {
		return fmt.Errorf("resync incident counter: %w", err)
	}
	if !highest.Valid {
		return nil
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(highest.String, prefix), 10, 64)
	if err != nil {
		return fmt.Errorf("resync incident counter: parse %q: %w", highest.String, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO incident_counters(year, seq)
		VALUES(?,?)
		ON CONFLICT (year)
		DO UPDATE SET seq = excluded.seq
		WHERE incident_counters.seq < excluded.seq`, year, seq)
	return err
}

func (s *incidentsStore) UpdateIncident(ctx context.Context, id int64, upd IncidentUpdate, now time.Time) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	var previous string
	if err := tx.QueryRowContext(ctx, previousStatusQuery(s.db.Dialect()), id).Scan(&previous); err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	sets := []string{"status=?", "updated_at=?"}
	args := []any{upd.Status, now.UTC()}
	if upd.ActionsTaken != nil {
		sets = append(sets, "actions_taken=?")
		args = append(args, *upd.ActionsTaken)
	}
	if upd.FollowUpRequired != nil {
		sets = append(sets, "follow_up_required=?")
		args = append(args, *upd.FollowUpRequired)
	}
	args = append(args, id)
	if _, err := tx.ExecContext(ctx, `UPDATE incidents SET `+strings.Join(sets, ", ")+` WHERE id=?`, args...); err != nil {
		tx.Rollback()
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return previous, nil
}

// previousStatusQuery locks the row on postgres so concurrent updates see each
// other's status. sqlite transactions already serialize on the single connection.
func previousStatusQuery(d Dialect) string {
	if d == DialectPostgres {
		return `SELECT status FROM incidents WHERE id=? FOR UPDATE`
	}
	return `SELECT status FROM incidents WHERE id=?`
}

func (s *incidentsStore) GetIncident(ctx context.Context, id int64) (*Incident, error) {
	inc, err := scanIncident(s.db.QueryRowContext(ctx, incidentSelect+` WHERE i.id=?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inc, nil
}

func (s *incidentsStore) ListIncidents(ctx context.Context, filter IncidentFilter) (Page[Incident], error) {
	var clauses []string
	var args []any
	if filter.Status != "" {
		clauses = append(clauses, "i.status=?")
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		clauses = append(clauses, "i.priority=?")
		args = append(args, filter.Priority)
	}
	if filter.Type != "" {
		clauses = append(clauses, "i.type=?")
		args = append(args, filter.Type)
	}
	if filter.ReportedBy > 0 {
		clauses = append(clauses, "i.reported_by=?")
		args = append(args, filter.ReportedBy)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	page := normalizePage(filter.Page)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents i`+where, args...).Scan(&total); err != nil {
		return Page[Incident]{}, err
	}
	query := incidentSelect + where + ` ORDER BY i.created_at DESC, i.id DESC LIMIT ? OFFSET ?`
	items, err := s.list(ctx, query, append(args, DefaultPageSize, pageOffset(page, DefaultPageSize))...)
	if err != nil {
		return Page[Incident]{}, err
	}
	return newPage(items, page, DefaultPageSize, total), nil
}

func (s *incidentsStore) ListRecentIncidents(ctx context.Context, limit int) ([]Incident, error) {
	return s.list(ctx, incidentSelect+` ORDER BY i.created_at DESC, i.id DESC LIMIT ?`, limit)
}

func (s *incidentsStore) ListIncidentsByReporter(ctx context.Context, guardID int64, limit int) ([]Incident, error) {
	return s.list(ctx, incidentSelect+` WHERE i.reported_by=? ORDER BY i.created_at DESC, i.id DESC LIMIT ?`, guardID, limit)
}

func (s *incidentsStore) IncidentStats(ctx context.Context) (IncidentStats, error) {
	var st IncidentStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status=? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN priority IN ('high','critical') THEN 1 ELSE 0 END), 0)
		FROM incidents`, IncidentStatusOpen).Scan(&st.Total, &st.Open, &st.HighPriority)
	return st, err
}

func (s *incidentsStore) AddIncidentMedia(ctx context.Context, m *IncidentMedia) (int64, error) {
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO incident_media(incident_id, filename, original_name, mime_type, type, file_size, file_path, description, created_at)
		VALUES(?,?,?,?,?,?,?,?,?) RETURNING id`,
		m.IncidentID, m.Filename, m.OriginalName, m.MimeType, m.Type, m.FileSize, m.FilePath, nullableString(m.Description), now).Scan(&id)
	if err != nil {
		return 0, err
	}
	m.ID = id
	m.CreatedAt = now
	return id, nil
}

func (s *incidentsStore) ListIncidentMedia(ctx context.Context, incidentID int64) ([]IncidentMedia, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, filename, original_name, mime_type, type, file_size, file_path, description, created_at
		FROM incident_media WHERE incident_id=? ORDER BY id ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []IncidentMedia{}
	for rows.Next() {
		var m IncidentMedia
		var desc sql.NullString
		if err := rows.Scan(&m.ID, &m.IncidentID, &m.Filename, &m.OriginalName, &m.MimeType, &m.Type, &m.FileSize, &m.FilePath, &desc, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Description = stringPtr(desc)
		res = append(res, m)
	}
	return res, rows.Err()
}

func (s *incidentsStore) list(ctx context.Context, query string, args ...any) ([]Incident, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *inc)
	}
	return res, rows.Err()
}

func scanIncident(row rowScanner) (*Incident, error) {
	var inc Incident
	var lat, lng sql.NullFloat64
	var partiesRaw, witnessesRaw string
	var actions, followUp sql.NullString
	var rep Reporter
	var teamID sql.NullInt64
	var u UserSummary
	var teamName, teamSector, teamShift sql.NullString
	if err := row.Scan(&inc.ID, &inc.IncidentNumber, &inc.ReportedBy, &inc.Title, &inc.Description, &inc.Type, &inc.Priority, &inc.Status, &inc.Location, &lat, &lng,
		&inc.OccurredAt, &partiesRaw, &witnessesRaw, &actions, &followUp, &inc.CreatedAt, &inc.UpdatedAt,
		&rep.UserID, &teamID, &rep.BadgeNumber, &rep.Rank, &rep.Status, &u.Username, &u.Name, &u.Email, &teamName, &teamSector, &teamShift); err != nil {
		return nil, err
	}
	inc.Latitude = floatPtr(lat)
	inc.Longitude = floatPtr(lng)
	inc.InvolvedParties = listFromJSON(partiesRaw)
	inc.Witnesses = listFromJSON(witnessesRaw)
	inc.ActionsTaken = stringPtr(actions)
	inc.FollowUpRequired = stringPtr(followUp)
	rep.ID = inc.ReportedBy
	rep.TeamID = int64Ptr(teamID)
	u.ID = rep.UserID
	rep.User = &u
	if rep.TeamID != nil && teamName.Valid {
		rep.Team = &TeamSummary{ID: *rep.TeamID, Name: teamName.String, Sector: teamSector.String, Shift: teamShift.String}
	}
	inc.Reporter = &rep
	return &inc, nil
}
