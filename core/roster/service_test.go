package roster

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"securepatrol/config"
	"securepatrol/core/dashboard"
	"securepatrol/core/store"
	"securepatrol/core/utils"
	"securepatrol/core/validation"
)

type rosterEnv struct {
	svc           *Service
	users         store.UsersStore
	incidents     store.IncidentsStore
	notifications store.NotificationsStore
	dash          *dashboard.Service
}

func setupRoster(t *testing.T) *rosterEnv {
	t.Helper()
	cfg := &config.AppConfig{DBDriver: "sqlite", DBPath: filepath.Join(t.TempDir(), "roster.db")}
	logger := utils.NewNopLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	users := store.NewUsersStore(db)
	teams := store.NewTeamsStore(db)
	guards := store.NewGuardsStore(db)
	incidents := store.NewIncidentsStore(db)
	notifications := store.NewNotificationsStore(db)
	return &rosterEnv{
		svc:           NewService(users, teams, guards, incidents, logger),
		users:         users,
		incidents:     incidents,
		notifications: notifications,
		dash:          dashboard.NewService(incidents, guards, teams, notifications),
	}
}

func (e *rosterEnv) user(t *testing.T, username string) *store.User {
	t.Helper()
	u := &store.User{Username: username, Name: username, PasswordHash: "x", Active: true}
	if _, err := e.users.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func seqNumber(count int64, now time.Time) (string, error) {
	return fmt.Sprintf("INC-%04d-%06d", now.Year(), count+1), nil
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	ve, ok := validation.As(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	return ve.Fields
}

func TestTeamValidationMessages(t *testing.T) {
	env := setupRoster(t)
	_, err := env.svc.CreateTeam(context.Background(), TeamInput{Shift: "dawn", MaxMembers: 21})
	fields := fieldErrors(t, err)
	want := map[string]string{
		"name":        "Team name is required.",
		"sector":      "Please specify the sector this team covers.",
		"shift":       "The selected shift is invalid.",
		"max_members": "A team cannot have more than 20 members.",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Fatalf("%s: got %q want %q", k, fields[k], v)
		}
	}
}

func TestTeamLifecycle(t *testing.T) {
	env := setupRoster(t)
	ctx := context.Background()
	team, err := env.svc.CreateTeam(ctx, TeamInput{Name: "Alpha", Sector: "North", Shift: "night", MaxMembers: 4})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !team.IsActive || team.GuardsCount != 0 {
		t.Fatalf("unexpected defaults %+v", team)
	}
	inactive := false
	updated, err := env.svc.UpdateTeam(ctx, team.ID, TeamInput{Name: "Alpha 2", Sector: "North", Shift: "morning", MaxMembers: 6, IsActive: &inactive})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Alpha 2" || updated.IsActive || updated.Shift != "morning" {
		t.Fatalf("update not applied %+v", updated)
	}
	active, _ := env.svc.ActiveTeams(ctx)
	if len(active) != 0 {
		t.Fatalf("inactive team listed as active")
	}
	if _, err := env.svc.UpdateTeam(ctx, 999, TeamInput{Name: "x", Sector: "y", Shift: "night", MaxMembers: 1}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := env.svc.DeleteTeam(ctx, team.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.svc.GetTeam(ctx, team.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGuardCreateRules(t *testing.T) {
	env := setupRoster(t)
	ctx := context.Background()
	u := env.user(t, "alice")
	team, _ := env.svc.CreateTeam(ctx, TeamInput{Name: "Alpha", Sector: "North", Shift: "night", MaxMembers: 4})

	_, err := env.svc.CreateGuard(ctx, GuardInput{UserID: 999, BadgeNumber: "B1", Rank: "Officer", HireDate: "2023-01-01"})
	if fieldErrors(t, err)["user_id"] != "Selected user does not exist." {
		t.Fatalf("expected unknown user error")
	}
	missingTeam := int64(77)
	_, err = env.svc.CreateGuard(ctx, GuardInput{UserID: u.ID, TeamID: &missingTeam, BadgeNumber: "B1", Rank: "Officer", HireDate: "2023-01-01"})
	if fieldErrors(t, err)["team_id"] == "" {
		t.Fatalf("expected unknown team error")
	}
	_, err = env.svc.CreateGuard(ctx, GuardInput{})
	fields := fieldErrors(t, err)
	if fields["user_id"] != "Please select a user." || fields["badge_number"] != "Badge number is required." || fields["hire_date"] != "Hire date is required." {
		t.Fatalf("unexpected messages %v", fields)
	}

	profile, err := env.svc.CreateGuard(ctx, GuardInput{UserID: u.ID, TeamID: &team.ID, BadgeNumber: "B1", Rank: "Officer", HireDate: "2023-01-01", Certifications: []string{"First Aid", "First Aid", "CCTV"}})
	if err != nil {
		t.Fatalf("create guard: %v", err)
	}
	if profile.Status != store.GuardStatusActive || len(profile.Certifications) != 2 || profile.Team == nil || profile.Team.Name != "Alpha" {
		t.Fatalf("unexpected profile %+v", profile.Guard)
	}

	other := env.user(t, "bob")
	_, err = env.svc.CreateGuard(ctx, GuardInput{UserID: other.ID, BadgeNumber: "B1", Rank: "Officer", HireDate: "2023-01-01"})
	if fieldErrors(t, err)["badge_number"] != "This badge number is already assigned." {
		t.Fatalf("expected badge uniqueness message")
	}
	candidates, _ := env.svc.Candidates(ctx)
	if len(candidates) != 1 || candidates[0].ID != other.ID {
		t.Fatalf("unexpected candidates %+v", candidates)
	}
}

func TestGuardUpdateAndProfile(t *testing.T) {
	env := setupRoster(t)
	ctx := context.Background()
	u := env.user(t, "alice")
	profile, err := env.svc.CreateGuard(ctx, GuardInput{UserID: u.ID, BadgeNumber: "B1", Rank: "Officer", HireDate: "2023-01-01"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.svc.UpdateGuard(ctx, profile.ID, GuardUpdateInput{Rank: "Sergeant", Status: "retired"}); fieldErrors(t, err)["status"] == "" {
		t.Fatalf("expected status error")
	}
	phone := "555-0100"
	updated, err := env.svc.UpdateGuard(ctx, profile.ID, GuardUpdateInput{Rank: "Sergeant", Status: store.GuardStatusOnLeave, Phone: &phone})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Rank != "Sergeant" || updated.Status != store.GuardStatusOnLeave || updated.Phone == nil || *updated.Phone != phone {
		t.Fatalf("update not applied %+v", updated.Guard)
	}
	for i := 0; i < 7; i++ {
		inc := &store.Incident{ReportedBy: profile.ID, Title: "t", Description: "d", Type: "other", Priority: "low", Location: "l", OccurredAt: time.Now()}
		if _, err := env.incidents.CreateIncident(ctx, inc, time.Now(), seqNumber); err != nil {
			t.Fatalf("seed incident: %v", err)
		}
	}
	got, err := env.svc.GetGuard(ctx, profile.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Incidents) != 5 {
		t.Fatalf("expected 5 latest incidents, got %d", len(got.Incidents))
	}
	if err := env.svc.DeleteGuard(ctx, profile.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.svc.GetGuard(ctx, profile.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDashboardOverview(t *testing.T) {
	env := setupRoster(t)
	ctx := context.Background()
	u := env.user(t, "alice")
	team, _ := env.svc.CreateTeam(ctx, TeamInput{Name: "Alpha", Sector: "North", Shift: "night", MaxMembers: 4})
	profile, err := env.svc.CreateGuard(ctx, GuardInput{UserID: u.ID, TeamID: &team.ID, BadgeNumber: "B1", Rank: "Officer", HireDate: "2023-01-01"})
	if err != nil {
		t.Fatalf("create guard: %v", err)
	}
	for _, p := range []string{"critical", "high", "low"} {
		inc := &store.Incident{ReportedBy: profile.ID, Title: "t", Description: "d", Type: "fire", Priority: p, Location: "l", OccurredAt: time.Now()}
		if _, err := env.incidents.CreateIncident(ctx, inc, time.Now(), seqNumber); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	for i := 0; i < 7; i++ {
		_, _ = env.notifications.CreateNotification(ctx, &store.Notification{UserID: u.ID, Title: "n", Message: "m", Type: store.NotificationSystemAlert})
	}
	ov, err := env.dash.Overview(ctx, u.ID)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.Stats.Total != 3 || ov.Stats.Open != 3 || ov.Stats.HighPriority != 2 || ov.Stats.ActiveGuards != 1 || ov.Stats.ActiveTeams != 1 {
		t.Fatalf("unexpected stats %+v", ov.Stats)
	}
	if len(ov.RecentIncidents) != 3 || len(ov.Notifications) != 5 {
		t.Fatalf("unexpected lists: incidents=%d notifications=%d", len(ov.RecentIncidents), len(ov.Notifications))
	}
	if ov.GuardProfile == nil || ov.GuardProfile.Team == nil {
		t.Fatalf("expected guard profile with team")
	}
	stranger := env.user(t, "nobody")
	ov, err = env.dash.Overview(ctx, stranger.ID)
	if err != nil || ov.GuardProfile != nil || len(ov.Notifications) != 0 {
		t.Fatalf("unexpected overview for non-guard: %+v %v", ov, err)
	}
}
