package appbootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"securepatrol/api"
	"securepatrol/config"
	"securepatrol/core/auth"
	"securepatrol/core/roster"
	"securepatrol/core/store"
	"securepatrol/core/utils"
)

func openDB(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (*store.DB, error) {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return db, nil
}

// Serve migrates the database, ensures the default admin and serves until ctx ends.
func Serve(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) error {
	db, err := openDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	comp, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return err
	}
	if err := EnsureDefaultAdmin(ctx, comp.stores.users, cfg, logger); err != nil {
		return err
	}
	return api.NewServer(cfg, comp.serverDeps, logger).Run(ctx)
}

func Migrate(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) error {
	db, err := openDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Printf("migrations applied")
	return db.Close()
}

// EnsureDefaultAdmin creates the configured admin account when no users exist.
func EnsureDefaultAdmin(ctx context.Context, users store.UsersStore, cfg *config.AppConfig, logger *utils.Logger) error {
	n, err := users.CountUsers(ctx)
	if err != nil {
		return err
	}
	if n > 0 || cfg.DefaultAdmin.Password == "" {
		return nil
	}
	username := utils.NormalizeUsername(cfg.DefaultAdmin.Username)
	if _, err := createUser(ctx, users, username, "Administrator", "", cfg.DefaultAdmin.Password, store.RoleAdmin); err != nil {
		return fmt.Errorf("default admin: %w", err)
	}
	logger.Printf("default admin %s created", username)
	return nil
}

type NewUser struct {
	Username string
	Name     string
	Email    string
	Password string
	Role     string
}

func CreateUser(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger, nu NewUser) (*store.User, error) {
	db, err := openDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	u, err := createUser(ctx, store.NewUsersStore(db), nu.Username, nu.Name, nu.Email, nu.Password, nu.Role)
	if err != nil {
		return nil, err
	}
	logger.Printf("user %s created with role %s", u.Username, u.Role)
	return u, nil
}

func createUser(ctx context.Context, users store.UsersStore, username, name, email, password, role string) (*store.User, error) {
	username = utils.NormalizeUsername(username)
	if err := utils.ValidateUsername(username); err != nil {
		return nil, err
	}
	switch role {
	case store.RoleAdmin, store.RoleSupervisor, store.RoleGuard:
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = username
	}
	u := &store.User{Username: username, Name: name, Email: email, PasswordHash: hash, Role: role, Active: true}
	if _, err := users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Seed loads a small demo roster: one team with a supervisor and three guards.
// Every seeded account uses password.
func Seed(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger, password string) error {
	db, err := openDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	st := newStores(db)
	svc := roster.NewService(st.users, st.teams, st.guards, st.incidents, logger)
	if _, err := createUser(ctx, st.users, "supervisor", "Shift Supervisor", "", password, store.RoleSupervisor); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return errors.New("seed: database already contains demo users")
		}
		return err
	}
	team, err := svc.CreateTeam(ctx, roster.TeamInput{Name: "Team Alpha", Sector: "North Gate", Shift: store.ShiftNight, MaxMembers: 5})
	if err != nil {
		return err
	}
	hire := time.Now().UTC().AddDate(-1, 0, 0).Format("2006-01-02")
	for i, name := range []string{"Guard One", "Guard Two", "Guard Three"} {
		username := fmt.Sprintf("guard%d", i+1)
		u, err := createUser(ctx, st.users, username, name, "", password, store.RoleGuard)
		if err != nil {
			return err
		}
		if _, err := svc.CreateGuard(ctx, roster.GuardInput{
			UserID:      u.ID,
			TeamID:      &team.ID,
			BadgeNumber: fmt.Sprintf("SP-%04d", i+1),
			Rank:        "Officer",
			HireDate:    hire,
		}); err != nil {
			return err
		}
	}
	logger.Printf("seeded team %q with 3 guards", team.Name)
	return nil
}
