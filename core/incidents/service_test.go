package incidents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"securepatrol/config"
	"securepatrol/core/store"
	"securepatrol/core/utils"
	"securepatrol/core/validation"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type serviceEnv struct {
	svc           *Service
	users         store.UsersStore
	teams         store.TeamsStore
	guards        store.GuardsStore
	incidents     store.IncidentsStore
	notifications store.NotificationsStore
	storageDir    string
}

var fixedNow = time.Date(2024, 7, 14, 9, 30, 0, 0, time.UTC)

func setupService(t *testing.T, blobs func(*LocalStore) BlobStore) *serviceEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{DBDriver: "sqlite", DBPath: filepath.Join(dir, "incidents.db")}
	logger := utils.NewNopLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	storageDir := filepath.Join(dir, "storage")
	local, err := NewLocalStore(storageDir)
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	var bs BlobStore = local
	if blobs != nil {
		bs = blobs(local)
	}
	env := &serviceEnv{
		users:         store.NewUsersStore(db),
		teams:         store.NewTeamsStore(db),
		guards:        store.NewGuardsStore(db),
		incidents:     store.NewIncidentsStore(db),
		notifications: store.NewNotificationsStore(db),
		storageDir:    storageDir,
	}
	env.svc = NewService(env.incidents, env.guards, env.notifications, Options{
		Blobs:             bs,
		Clock:             func() time.Time { return fixedNow },
		Logger:            logger,
		UploadConcurrency: 2,
	})
	return env
}

func (e *serviceEnv) user(t *testing.T, username, name string) *store.User {
	t.Helper()
	u := &store.User{Username: username, Name: name, PasswordHash: "x", Role: store.RoleGuard, Active: true}
	if _, err := e.users.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (e *serviceEnv) guard(t *testing.T, username, name string, team *store.Team) *store.Guard {
	t.Helper()
	u := e.user(t, username, name)
	g := &store.Guard{UserID: u.ID, BadgeNumber: "B-" + username, Rank: "Officer", HireDate: fixedNow.AddDate(-1, 0, 0)}
	if team != nil {
		g.TeamID = &team.ID
	}
	if _, err := e.guards.CreateGuard(context.Background(), g); err != nil {
		t.Fatalf("create guard: %v", err)
	}
	return g
}

func (e *serviceEnv) team(t *testing.T, name string) *store.Team {
	t.Helper()
	team := &store.Team{Name: name, Sector: "Harbor", Shift: store.ShiftNight, MaxMembers: 5, IsActive: true}
	if _, err := e.teams.CreateTeam(context.Background(), team); err != nil {
		t.Fatalf("create team: %v", err)
	}
	return team
}

func validInput(typ, priority string) CreateInput {
	return CreateInput{
		Title:       "Smoke in warehouse",
		Description: "Smoke seen coming from loading bay 2",
		Type:        typ,
		Priority:    priority,
		Location:    "Warehouse B",
		OccurredAt:  "2024-07-14T09:00",
		Witnesses:   []string{"Dock worker", " ", "Driver"},
	}
}

func TestCreateFireIncidentNotifiesTeam(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	alpha := env.team(t, "Team Alpha")
	reporter := env.guard(t, "rita", "Rita Reporter", alpha)
	for _, name := range []string{"ann", "ben", "cal"} {
		env.guard(t, name, strings.ToUpper(name), alpha)
	}
	outsider := env.guard(t, "omar", "Omar", env.team(t, "Team Bravo"))

	res, err := env.svc.Create(ctx, reporter.UserID, validInput("fire", "critical"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	inc := res.Incident
	if !regexp.MustCompile(`^INC-2024-\d{6}$`).MatchString(inc.IncidentNumber) {
		t.Fatalf("unexpected number %s", inc.IncidentNumber)
	}
	if inc.Status != store.IncidentStatusOpen || inc.ReportedBy != reporter.ID {
		t.Fatalf("unexpected incident: %+v", inc)
	}
	if len(inc.Witnesses) != 2 {
		t.Fatalf("expected blank witnesses dropped, got %v", inc.Witnesses)
	}
	if res.NotificationsSent != 3 {
		t.Fatalf("expected 3 notifications, got %d", res.NotificationsSent)
	}
	if n, _ := env.notifications.CountForIncident(ctx, inc.ID); n != 3 {
		t.Fatalf("expected 3 stored notifications, got %d", n)
	}
	if got, _ := env.notifications.ListNotifications(ctx, reporter.UserID, false, 0); len(got) != 0 {
		t.Fatalf("reporter must not notify themselves")
	}
	if got, _ := env.notifications.ListNotifications(ctx, outsider.UserID, false, 0); len(got) != 0 {
		t.Fatalf("other teams must not be notified")
	}
	mates, _ := env.guards.ListTeammates(ctx, alpha.ID, reporter.ID)
	list, _ := env.notifications.ListNotifications(ctx, mates[0].UserID, true, 0)
	if len(list) != 1 {
		t.Fatalf("expected one notification for teammate, got %d", len(list))
	}
	n := list[0]
	if n.Type != store.NotificationIncidentCreated || n.Priority != store.NotificationPriorityUrgent || n.Title != "New Incident Reported" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if n.Message != "New critical priority fire incident reported by Rita Reporter" {
		t.Fatalf("unexpected message %q", n.Message)
	}
	if n.Metadata["incident_number"] != inc.IncidentNumber {
		t.Fatalf("metadata missing incident number: %v", n.Metadata)
	}
}

func TestCreateWithoutTeamSendsNothing(t *testing.T) {
	env := setupService(t, nil)
	g := env.guard(t, "solo", "Solo", nil)
	res, err := env.svc.Create(context.Background(), g.UserID, validInput("theft", "low"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.NotificationsSent != 0 {
		t.Fatalf("expected no notifications, got %d", res.NotificationsSent)
	}
}

func TestCreateRequiresGuardProfile(t *testing.T) {
	env := setupService(t, nil)
	u := env.user(t, "clerk", "Clerk")
	_, err := env.svc.Create(context.Background(), u.ID, validInput("other", "medium"), nil)
	if !errors.Is(err, ErrNotGuard) {
		t.Fatalf("expected ErrNotGuard, got %v", err)
	}
	page, _ := env.incidents.ListIncidents(context.Background(), store.IncidentFilter{})
	if page.Total != 0 {
		t.Fatalf("no incident may be stored for non-guards")
	}
}

func TestCreateValidationRejectsWholeBatch(t *testing.T) {
	env := setupService(t, nil)
	g := env.guard(t, "val", "Val", nil)
	in := validInput("earthquake", "low")
	in.Title = ""
	_, err := env.svc.Create(context.Background(), g.UserID, in, []Upload{
		memUpload("ok.png", pngBytes),
		memUpload("virus.exe", []byte("MZ")),
	})
	var verrs *ValidationError
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verrs.Fields["title"] != "Incident title is required." {
		t.Fatalf("unexpected title message %q", verrs.Fields["title"])
	}
	if verrs.Fields["type"] != "The selected type is invalid." {
		t.Fatalf("unexpected type message %q", verrs.Fields["type"])
	}
	if verrs.Fields["media.1"] != msgFileTypeDenied {
		t.Fatalf("unexpected media message %q", verrs.Fields["media.1"])
	}
	page, _ := env.incidents.ListIncidents(context.Background(), store.IncidentFilter{})
	if page.Total != 0 {
		t.Fatalf("nothing may be persisted on validation failure")
	}
	entries, _ := os.ReadDir(env.storageDir)
	if len(entries) != 0 {
		t.Fatalf("no media may be written on validation failure")
	}
}

func TestCreateStoresMedia(t *testing.T) {
	env := setupService(t, nil)
	g := env.guard(t, "cam", "Cam", nil)
	desc := "front door"
	up := memUpload("Door Photo.png", pngBytes)
	up.Description = &desc
	res, err := env.svc.Create(context.Background(), g.UserID, validInput("vandalism", "high"), []Upload{up, memUpload("report.pdf", pdfBytes)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	media := res.Incident.Media
	if len(media) != 2 || len(res.FailedMedia) != 0 {
		t.Fatalf("expected 2 media, got %d (failed %v)", len(media), res.FailedMedia)
	}
	photo := media[0]
	if photo.Type != MediaPhoto || photo.MimeType != "image/png" || photo.OriginalName != "Door Photo.png" {
		t.Fatalf("unexpected photo record: %+v", photo)
	}
	if photo.Description == nil || *photo.Description != desc {
		t.Fatalf("description not kept")
	}
	if !strings.HasSuffix(photo.Filename, ".png") || photo.Filename == "Door Photo.png" {
		t.Fatalf("expected generated filename, got %s", photo.Filename)
	}
	wantPath := fmt.Sprintf("incidents/%d/%s", res.Incident.ID, photo.Filename)
	if photo.FilePath != wantPath {
		t.Fatalf("path %s want %s", photo.FilePath, wantPath)
	}
	if _, err := os.Stat(filepath.Join(env.storageDir, filepath.FromSlash(photo.FilePath))); err != nil {
		t.Fatalf("blob not written: %v", err)
	}
	if media[1].Type != MediaDocument {
		t.Fatalf("pdf should be a document, got %s", media[1].Type)
	}
	got, err := env.svc.Get(context.Background(), res.Incident.ID)
	if err != nil || len(got.Media) != 2 {
		t.Fatalf("get: %v media=%d", err, len(got.Media))
	}
}

type flakyBlobs struct {
	BlobStore
	mu    sync.Mutex
	calls int
}

func (f *flakyBlobs) Put(ctx context.Context, locator string, r io.Reader, limit int64) (int64, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls == 1
	f.mu.Unlock()
	if fail {
		return 0, errors.New("disk full")
	}
	return f.BlobStore.Put(ctx, locator, r, limit)
}

func TestCreateKeepsIncidentWhenMediaWriteFails(t *testing.T) {
	env := setupService(t, func(l *LocalStore) BlobStore { return &flakyBlobs{BlobStore: l} })
	env.svc.concurrency = 1
	g := env.guard(t, "flaky", "Flaky", nil)
	res, err := env.svc.Create(context.Background(), g.UserID, validInput("theft", "medium"), []Upload{
		memUpload("first.png", pngBytes),
		memUpload("second.png", pngBytes),
	})
	if err != nil {
		t.Fatalf("create must succeed despite media failure: %v", err)
	}
	if len(res.Incident.Media) != 1 || res.Incident.Media[0].OriginalName != "second.png" {
		t.Fatalf("expected only the second file stored, got %+v", res.Incident.Media)
	}
	if len(res.FailedMedia) != 1 || res.FailedMedia[0] != "first.png" {
		t.Fatalf("unexpected failed list %v", res.FailedMedia)
	}
	if _, err := env.svc.Get(context.Background(), res.Incident.ID); err != nil {
		t.Fatalf("incident must persist: %v", err)
	}
}

func TestConcurrentCreatesGetDistinctNumbers(t *testing.T) {
	env := setupService(t, nil)
	g := env.guard(t, "busy", "Busy", nil)
	const n = 8
	var wg sync.WaitGroup
	numbers := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.svc.Create(context.Background(), g.UserID, validInput("other", "low"), []Upload{memUpload("p.png", pngBytes)})
			errs[i] = err
			if err == nil {
				numbers[i] = res.Incident.IncidentNumber
			}
		}(i)
	}
	wg.Wait()
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("create %d: %v", i, errs[i])
		}
		if seen[numbers[i]] {
			t.Fatalf("duplicate incident number %s", numbers[i])
		}
		seen[numbers[i]] = true
	}
}

func TestUpdateNotifiesReporterOnStatusChange(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	g := env.guard(t, "rep", "Rep", nil)
	res, err := env.svc.Create(ctx, g.UserID, validInput("safety_hazard", "medium"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := res.Incident.ID

	up, err := env.svc.Update(ctx, id, UpdateInput{Status: store.IncidentStatusOpen})
	if err != nil || up.Notified {
		t.Fatalf("unchanged status must not notify: %+v %v", up, err)
	}
	actions := "Cordoned off"
	up, err = env.svc.Update(ctx, id, UpdateInput{Status: store.IncidentStatusInvestigating, ActionsTaken: &actions})
	if err != nil || !up.Notified {
		t.Fatalf("status change must notify: %+v %v", up, err)
	}
	if up.Incident.Status != store.IncidentStatusInvestigating || up.Incident.ActionsTaken == nil || *up.Incident.ActionsTaken != actions {
		t.Fatalf("update not applied: %+v", up.Incident)
	}
	// closed back to open is allowed
	for _, st := range []string{store.IncidentStatusClosed, store.IncidentStatusOpen} {
		if _, err := env.svc.Update(ctx, id, UpdateInput{Status: st}); err != nil {
			t.Fatalf("update to %s: %v", st, err)
		}
	}
	list, _ := env.notifications.ListNotifications(ctx, g.UserID, false, 0)
	if len(list) != 3 {
		t.Fatalf("expected 3 status notifications, got %d", len(list))
	}
	last := list[len(list)-1]
	want := fmt.Sprintf("Incident #%s status changed to investigating", res.Incident.IncidentNumber)
	if last.Message != want || last.Title != "Incident Status Updated" || last.Priority != store.NotificationPriorityMedium || last.Type != store.NotificationIncidentUpdated {
		t.Fatalf("unexpected notification %+v", last)
	}
}

func TestUpdateErrors(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	_, err := env.svc.Update(ctx, 1, UpdateInput{Status: "archived"})
	var verrs *ValidationError
	if !errors.As(err, &verrs) || verrs.Fields["status"] == "" {
		t.Fatalf("expected status validation error, got %v", err)
	}
	if _, err := env.svc.Update(ctx, 404, UpdateInput{Status: store.IncidentStatusClosed}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := env.svc.Get(ctx, 404); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}
}

func TestNotificationPriority(t *testing.T) {
	cases := map[string]string{"critical": "urgent", "high": "high", "medium": "medium", "low": "low", "": "medium"}
	for in, want := range cases {
		if got := NotificationPriority(in); got != want {
			t.Fatalf("NotificationPriority(%q)=%s want %s", in, got, want)
		}
	}
}

func TestCreateCoordinateBounds(t *testing.T) {
	env := setupService(t, nil)
	g := env.guard(t, "geo", "Geo", nil)
	cases := []struct {
		name     string
		lat, lng validation.Number
		errs     map[string]string
	}{
		{name: "north pole and date line", lat: validation.NumberOf(90), lng: validation.NumberOf(180)},
		{name: "south edge", lat: validation.NumberOf(-90), lng: validation.NumberOf(-180)},
		{name: "absent", lat: validation.Number{}, lng: validation.Number{}},
		{name: "latitude too far north", lat: validation.NumberOf(90.1), lng: validation.NumberOf(0),
			errs: map[string]string{"latitude": "The latitude must be between -90 and 90."}},
		{name: "longitude too far west", lat: validation.NumberOf(0), lng: validation.NumberOf(-180.1),
			errs: map[string]string{"longitude": "The longitude must be between -180 and 180."}},
		{name: "not numbers", lat: validation.ParseNumber("north"), lng: validation.ParseNumber("999x"),
			errs: map[string]string{"latitude": "The latitude must be a number.", "longitude": "The longitude must be a number."}},
	}
	created := 0
	for _, tc := range cases {
		in := validInput("other", "low")
		in.Latitude, in.Longitude = tc.lat, tc.lng
		res, err := env.svc.Create(context.Background(), g.UserID, in, nil)
		if tc.errs == nil {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			created++
			if tc.lat.Value != nil && (res.Incident.Latitude == nil || *res.Incident.Latitude != *tc.lat.Value) {
				t.Fatalf("%s: latitude not stored: %v", tc.name, res.Incident.Latitude)
			}
			continue
		}
		var verrs *ValidationError
		if !errors.As(err, &verrs) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
		for field, msg := range tc.errs {
			if verrs.Fields[field] != msg {
				t.Fatalf("%s: %s message %q, want %q", tc.name, field, verrs.Fields[field], msg)
			}
		}
	}
	page, _ := env.incidents.ListIncidents(context.Background(), store.IncidentFilter{})
	if page.Total != created {
		t.Fatalf("expected %d stored incidents, got %d", created, page.Total)
	}
}

func TestConcurrentStatusChangeNotifiesOnce(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	g := env.guard(t, "race", "Race", nil)
	res, err := env.svc.Create(ctx, g.UserID, validInput("theft", "high"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.Update(ctx, res.Incident.ID, UpdateInput{Status: store.IncidentStatusInvestigating}); err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()
	list, _ := env.notifications.ListNotifications(ctx, g.UserID, false, 0)
	if len(list) != 1 {
		t.Fatalf("expected exactly one status notification, got %d", len(list))
	}
	inc, err := env.svc.Get(ctx, res.Incident.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !inc.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("updated_at must come from the service clock, got %v", inc.UpdatedAt)
	}
}
