package store

import (
	"context"
	"database/sql"
	"time"
)

const (
	NotificationIncidentCreated = "incident_created"
	NotificationIncidentUpdated = "incident_updated"
	NotificationTeamAssignment  = "team_assignment"
	NotificationSystemAlert     = "system_alert"

	NotificationPriorityLow    = "low"
	NotificationPriorityMedium = "medium"
	NotificationPriorityHigh   = "high"
	NotificationPriorityUrgent = "urgent"
)

type Notification struct {
	ID         int64          `json:"id"`
	UserID     int64          `json:"user_id"`
	IncidentID *int64         `json:"incident_id"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Type       string         `json:"type"`
	Priority   string         `json:"priority"`
	IsRead     bool           `json:"is_read"`
	ReadAt     *time.Time     `json:"read_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

type NotificationsStore interface {
	CreateNotification(ctx context.Context, n *Notification) (int64, error)
	ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, notificationID int64, now time.Time) (bool, error)
	CountForIncident(ctx context.Context, incidentID int64) (int, error)
}

type notificationsStore struct {
	db *DB
}

func NewNotificationsStore(db *DB) NotificationsStore {
	return &notificationsStore{db: db}
}

func (s *notificationsStore) CreateNotification(ctx context.Context, n *Notification) (int64, error) {
	now := time.Now().UTC()
	if n.Priority == "" {
		n.Priority = NotificationPriorityMedium
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications(user_id, incident_id, title, message, type, priority, is_read, read_at, metadata, created_at)
		VALUES(?,?,?,?,?,?,0,NULL,?,?) RETURNING id`,
		n.UserID, nullableID(n.IncidentID), n.Title, n.Message, n.Type, n.Priority, metadataToJSON(n.Metadata), now).Scan(&id)
	if err != nil {
		return 0, err
	}
	n.ID = id
	n.IsRead = false
	n.ReadAt = nil
	n.CreatedAt = now
	return id, nil
}

func (s *notificationsStore) ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]Notification, error) {
	query := `SELECT id, user_id, incident_id, title, message, type, priority, is_read, read_at, metadata, created_at FROM notifications WHERE user_id=?`
	args := []any{userID}
	if unreadOnly {
		query += ` AND is_read=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Notification{}
	for rows.Next() {
		var n Notification
		var incidentID sql.NullInt64
		var read int
		var readAt sql.NullTime
		var meta sql.NullString
		if err := rows.Scan(&n.ID, &n.UserID, &incidentID, &n.Title, &n.Message, &n.Type, &n.Priority, &read, &readAt, &meta, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.IncidentID = int64Ptr(incidentID)
		n.IsRead = read == 1
		n.ReadAt = timePtr(readAt)
		n.Metadata = metadataFromJSON(meta)
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkRead flags the notification as read only when it belongs to userID.
// It reports whether a row changed; already-read rows keep their read_at.
func (s *notificationsStore) MarkRead(ctx context.Context, userID, notificationID int64, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read=1, read_at=? WHERE id=? AND user_id=? AND is_read=0`,
		now.UTC(), notificationID, userID)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *notificationsStore) CountForIncident(ctx context.Context, incidentID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE incident_id=?`, incidentID).Scan(&n)
	return n, err
}
