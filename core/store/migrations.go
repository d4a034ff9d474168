package store

import (
	"context"
	"embed"
	"fmt"

	"securepatrol/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var postgresMigrations embed.FS

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'guard',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		username TEXT NOT NULL,
		roles TEXT NOT NULL,
		csrf_token TEXT NOT NULL,
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		last_seen_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS teams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT,
		sector TEXT NOT NULL,
		shift TEXT NOT NULL,
		max_members INTEGER NOT NULL DEFAULT 5,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS guards (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE,
		team_id INTEGER,
		badge_number TEXT NOT NULL UNIQUE,
		rank TEXT NOT NULL,
		phone TEXT,
		emergency_contact TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		hire_date TIMESTAMP NOT NULL,
		certifications TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY(team_id) REFERENCES teams(id) ON DELETE SET NULL
	);`,
	`CREATE TABLE IF NOT EXISTS incident_counters (
		year INTEGER PRIMARY KEY,
		seq INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS incidents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reported_by INTEGER NOT NULL,
		incident_number TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		type TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'medium',
		status TEXT NOT NULL DEFAULT 'open',
		location TEXT NOT NULL,
		latitude REAL,
		longitude REAL,
		occurred_at TIMESTAMP NOT NULL,
		involved_parties TEXT NOT NULL DEFAULT '[]',
		witnesses TEXT NOT NULL DEFAULT '[]',
		actions_taken TEXT,
		follow_up_required TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY(reported_by) REFERENCES guards(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS incident_media (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		incident_id INTEGER NOT NULL,
		filename TEXT NOT NULL,
		original_name TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		type TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		file_path TEXT NOT NULL,
		description TEXT,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY(incident_id) REFERENCES incidents(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		incident_id INTEGER,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		type TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'medium',
		is_read INTEGER NOT NULL DEFAULT 0,
		read_at TIMESTAMP,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY(incident_id) REFERENCES incidents(id) ON DELETE CASCADE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);`,
	`CREATE INDEX IF NOT EXISTS idx_teams_active_created ON teams(is_active, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_guards_team_status ON guards(team_id, status);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_status_priority_created ON incidents(status, priority, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_type ON incidents(type);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_reported_by ON incidents(reported_by);`,
	`CREATE INDEX IF NOT EXISTS idx_incident_media_incident ON incident_media(incident_id);`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user_read_created ON notifications(user_id, is_read, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_incident ON notifications(incident_id);`,
}

func ApplyMigrations(ctx context.Context, db *DB, logger *utils.Logger) error {
	if db.Dialect() == DialectPostgres {
		return applyGooseMigrations(ctx, db, logger)
	}
	return applySQLiteMigrations(ctx, db, logger)
}

func applySQLiteMigrations(ctx context.Context, db *DB, logger *utils.Logger) error {
	if logger != nil {
		logger.Printf("applying sqlite migrations")
	}
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration #%d failed: %w", i+1, err)
		}
	}
	if logger != nil {
		logger.Printf("sqlite migrations applied")
	}
	return nil
}

func applyGooseMigrations(ctx context.Context, db *DB, logger *utils.Logger) error {
	goose.SetBaseFS(postgresMigrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if logger != nil {
		goose.SetLogger(gooseLogger{logger})
	}
	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

type gooseLogger struct {
	l *utils.Logger
}

func (g gooseLogger) Fatalf(format string, v ...any) { g.l.Errorf(format, v...) }
func (g gooseLogger) Printf(format string, v ...any) { g.l.Printf(format, v...) }
