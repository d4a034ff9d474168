package roster

import (
	"context"
	"errors"
	"fmt"

	"securepatrol/core/store"
	"securepatrol/core/utils"
	"securepatrol/core/validation"
)

const latestIncidentsOnProfile = 5

type TeamInput struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description *string `json:"description"`
	Sector      string  `json:"sector" validate:"required,max=255"`
	Shift       string  `json:"shift" validate:"required,oneof=morning afternoon night"`
	MaxMembers  int     `json:"max_members" validate:"required,min=1,max=20"`
	IsActive    *bool   `json:"is_active"`
}

var teamMessages = map[string]string{
	"name.required":        "Team name is required.",
	"sector.required":      "Please specify the sector this team covers.",
	"shift.required":       "Please select a shift.",
	"max_members.required": "Please specify the maximum number of team members.",
	"max_members.min":      "A team must have at least 1 member.",
	"max_members.max":      "A team cannot have more than 20 members.",
}

type GuardInput struct {
	UserID           int64    `json:"user_id" validate:"required"`
	TeamID           *int64   `json:"team_id"`
	BadgeNumber      string   `json:"badge_number" validate:"required,max=255"`
	Rank             string   `json:"rank" validate:"required,max=255"`
	Phone            *string  `json:"phone" validate:"omitempty,max=20"`
	EmergencyContact *string  `json:"emergency_contact"`
	HireDate         string   `json:"hire_date" validate:"required,datetime_any"`
	Certifications   []string `json:"certifications"`
}

var guardMessages = map[string]string{
	"user_id.required":      "Please select a user.",
	"badge_number.required": "Badge number is required.",
	"rank.required":         "Guard rank is required.",
	"hire_date.required":    "Hire date is required.",
}

type GuardUpdateInput struct {
	TeamID           *int64   `json:"team_id"`
	Rank             string   `json:"rank" validate:"required,max=255"`
	Phone            *string  `json:"phone" validate:"omitempty,max=20"`
	EmergencyContact *string  `json:"emergency_contact"`
	Status           string   `json:"status" validate:"required,oneof=active inactive on_leave"`
	Certifications   []string `json:"certifications"`
}

// GuardProfile is a guard with its most recent reports.
type GuardProfile struct {
	*store.Guard
	Incidents []store.Incident `json:"incidents"`
}

type Service struct {
	users     store.UsersStore
	teams     store.TeamsStore
	guards    store.GuardsStore
	incidents store.IncidentsStore
	logger    *utils.Logger
}

func NewService(users store.UsersStore, teams store.TeamsStore, guards store.GuardsStore, incidents store.IncidentsStore, logger *utils.Logger) *Service {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Service{users: users, teams: teams, guards: guards, incidents: incidents, logger: logger}
}

func (s *Service) ListTeams(ctx context.Context, page int) (store.Page[store.Team], error) {
	return s.teams.ListTeams(ctx, page)
}

func (s *Service) ActiveTeams(ctx context.Context) ([]store.Team, error) {
	return s.teams.ListActiveTeams(ctx)
}

func (s *Service) GetTeam(ctx context.Context, id int64) (*store.Team, error) {
	t, err := s.teams.GetTeam(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, store.ErrNotFound
	}
	members, err := s.guards.ListTeamGuards(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Guards = members
	return t, nil
}

func (s *Service) CreateTeam(ctx context.Context, in TeamInput) (*store.Team, error) {
	if verrs := validation.Struct(in, teamMessages); !verrs.Empty() {
		return nil, verrs
	}
	t := &store.Team{
		Name:        in.Name,
		Description: in.Description,
		Sector:      in.Sector,
		Shift:       in.Shift,
		MaxMembers:  in.MaxMembers,
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if _, err := s.teams.CreateTeam(ctx, t); err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}
	s.logger.Printf("team %d %q created", t.ID, t.Name)
	return s.GetTeam(ctx, t.ID)
}

func (s *Service) UpdateTeam(ctx context.Context, id int64, in TeamInput) (*store.Team, error) {
	if verrs := validation.Struct(in, teamMessages); !verrs.Empty() {
		return nil, verrs
	}
	current, err := s.teams.GetTeam(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, store.ErrNotFound
	}
	current.Name = in.Name
	current.Description = in.Description
	current.Sector = in.Sector
	current.Shift = in.Shift
	current.MaxMembers = in.MaxMembers
	if in.IsActive != nil {
		current.IsActive = *in.IsActive
	}
	if err := s.teams.UpdateTeam(ctx, current); err != nil {
		return nil, err
	}
	return s.GetTeam(ctx, id)
}

func (s *Service) DeleteTeam(ctx context.Context, id int64) error {
	if err := s.teams.DeleteTeam(ctx, id); err != nil {
		return err
	}
	s.logger.Printf("team %d deleted", id)
	return nil
}

func (s *Service) ListGuards(ctx context.Context, page int) (store.Page[store.Guard], error) {
	return s.guards.ListGuards(ctx, page)
}

// Candidates lists users that do not have a guard profile yet.
func (s *Service) Candidates(ctx context.Context) ([]store.User, error) {
	return s.users.ListUsersWithoutGuard(ctx)
}

func (s *Service) GetGuard(ctx context.Context, id int64) (*GuardProfile, error) {
	g, err := s.guards.GetGuard(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, store.ErrNotFound
	}
	latest, err := s.incidents.ListIncidentsByReporter(ctx, id, latestIncidentsOnProfile)
	if err != nil {
		return nil, err
	}
	return &GuardProfile{Guard: g, Incidents: latest}, nil
}

func (s *Service) CreateGuard(ctx context.Context, in GuardInput) (*GuardProfile, error) {
	verrs := validation.Struct(in, guardMessages)
	if in.UserID > 0 {
		u, err := s.users.GetUser(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		if u == nil {
			verrs.Add("user_id", "Selected user does not exist.")
		}
	}
	if err := s.checkTeam(ctx, in.TeamID, verrs); err != nil {
		return nil, err
	}
	if !verrs.Empty() {
		return nil, verrs
	}
	hireDate, _ := validation.ParseTime(in.HireDate)
	g := &store.Guard{
		UserID:           in.UserID,
		TeamID:           in.TeamID,
		BadgeNumber:      in.BadgeNumber,
		Rank:             in.Rank,
		Phone:            in.Phone,
		EmergencyContact: in.EmergencyContact,
		Status:           store.GuardStatusActive,
		HireDate:         hireDate,
		Certifications:   in.Certifications,
	}
	if _, err := s.guards.CreateGuard(ctx, g); err != nil {
		if ve := duplicateToValidation(err); ve != nil {
			return nil, ve
		}
		return nil, fmt.Errorf("create guard: %w", err)
	}
	s.logger.Printf("guard %d created for user %d", g.ID, g.UserID)
	return s.GetGuard(ctx, g.ID)
}

func (s *Service) UpdateGuard(ctx context.Context, id int64, in GuardUpdateInput) (*GuardProfile, error) {
	verrs := validation.Struct(in, nil)
	if err := s.checkTeam(ctx, in.TeamID, verrs); err != nil {
		return nil, err
	}
	if !verrs.Empty() {
		return nil, verrs
	}
	current, err := s.guards.GetGuard(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, store.ErrNotFound
	}
	current.TeamID = in.TeamID
	current.Rank = in.Rank
	current.Phone = in.Phone
	current.EmergencyContact = in.EmergencyContact
	current.Status = in.Status
	current.Certifications = in.Certifications
	if err := s.guards.UpdateGuard(ctx, current); err != nil {
		return nil, err
	}
	return s.GetGuard(ctx, id)
}

func (s *Service) DeleteGuard(ctx context.Context, id int64) error {
	if err := s.guards.DeleteGuard(ctx, id); err != nil {
		return err
	}
	s.logger.Printf("guard %d deleted", id)
	return nil
}

func (s *Service) checkTeam(ctx context.Context, teamID *int64, verrs *validation.Errors) error {
	if teamID == nil || *teamID == 0 {
		return nil
	}
	t, err := s.teams.GetTeam(ctx, *teamID)
	if err != nil {
		return err
	}
	if t == nil {
		verrs.Add("team_id", "The selected team id is invalid.")
	}
	return nil
}

func duplicateToValidation(err error) *validation.Errors {
	switch {
	case errors.Is(err, store.ErrBadgeTaken):
		return &validation.Errors{Fields: map[string]string{"badge_number": "This badge number is already assigned."}}
	case errors.Is(err, store.ErrGuardProfile):
		return &validation.Errors{Fields: map[string]string{"user_id": "This user already has a guard profile."}}
	}
	return nil
}
