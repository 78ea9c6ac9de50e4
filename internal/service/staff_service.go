package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/assetdesk/ticket-lifecycle/internal/auth"
	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/repository"
	apperrors "github.com/assetdesk/ticket-lifecycle/pkg/util"
)

// StaffService manages departments and the engineers who work tickets.
type StaffService struct {
	store      repository.Store
	bcryptCost int
	logger     *zap.Logger
}

// EngineerInput describes a staff member to create.
type EngineerInput struct {
	Name           string
	Email          string
	Password       string
	Role           domain.StaffRole
	DepartmentID   *string
	Specialization string
	MaxOpenTickets int
}

// StaffListFilters define listing parameters.
type StaffListFilters struct {
	Role         *domain.StaffRole
	DepartmentID *string
	Active       *bool
	Limit        int
	Offset       int
}

// NewStaffService constructs the service. bcryptCost 0 uses the default.
func NewStaffService(store repository.Store, bcryptCost int, logger *zap.Logger) *StaffService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffService{store: store, bcryptCost: bcryptCost, logger: logger}
}

func requireAdmin(actor domain.Actor) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	if actor.Role != domain.StaffRoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// CreateDepartment creates a new department.
func (s *StaffService) CreateDepartment(ctx context.Context, actor domain.Actor, name, description string) (*domain.Department, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.NewValidationError("name required", nil)
	}
	dept := &domain.Department{
		Name:        strings.TrimSpace(name),
		Description: description,
		IsActive:    true,
	}
	if err := s.store.Departments().Create(ctx, dept); err != nil {
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}

// ListDepartments returns departments by name; inactive ones only on request.
func (s *StaffService) ListDepartments(ctx context.Context, actor domain.Actor, includeInactive bool) ([]domain.Department, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	depts, err := s.store.Departments().List(ctx, includeInactive)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return depts, nil
}

// SetDepartmentActive opens or closes a department to new tickets.
func (s *StaffService) SetDepartmentActive(ctx context.Context, actor domain.Actor, id string, active bool) (*domain.Department, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.store.Departments().SetActive(ctx, id, active, time.Now().UTC()); err != nil {
		return nil, apperrors.MapError(notFoundOr(err, "department", map[string]any{"department_id": id}))
	}
	dept, err := s.store.Departments().GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("department availability changed", zap.String("department_id", id), zap.Bool("active", active))
	return dept, nil
}

// CreateEngineer adds a staff member with a hashed password.
func (s *StaffService) CreateEngineer(ctx context.Context, actor domain.Actor, input EngineerInput) (*domain.Engineer, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.createEngineer(ctx, input)
}

func (s *StaffService) createEngineer(ctx context.Context, input EngineerInput) (*domain.Engineer, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Email == "" || input.Password == "" || strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.NewValidationError("name, email and password required", nil)
	}
	switch input.Role {
	case domain.StaffRoleEngineer, domain.StaffRoleDispatcher, domain.StaffRoleAdmin:
	case "":
		input.Role = domain.StaffRoleEngineer
	default:
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": input.Role})
	}
	if input.MaxOpenTickets < 0 {
		return nil, apperrors.NewValidationError("max_open_tickets must not be negative", nil)
	}

	if _, err := s.store.Engineers().GetByEmail(ctx, input.Email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": input.Email})
	} else if !apperrors.IsNoRows(err) {
		return nil, apperrors.MapError(err)
	}
	if input.DepartmentID != nil {
		if _, err := s.store.Departments().GetByID(ctx, *input.DepartmentID); err != nil {
			return nil, apperrors.MapError(notFoundOr(err, "department", map[string]any{"department_id": *input.DepartmentID}))
		}
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	engineer := &domain.Engineer{
		Name:           strings.TrimSpace(input.Name),
		Email:          input.Email,
		PasswordHash:   hash,
		Role:           input.Role,
		DepartmentID:   input.DepartmentID,
		Specialization: input.Specialization,
		Active:         true,
		Available:      true,
		MaxOpenTickets: input.MaxOpenTickets,
	}
	if err := s.store.Engineers().Create(ctx, engineer); err != nil {
		return nil, apperrors.MapError(err)
	}
	return engineer, nil
}

// ListEngineers returns staff matching filters.
func (s *StaffService) ListEngineers(ctx context.Context, actor domain.Actor, filters StaffListFilters) ([]domain.Engineer, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	filter := repository.EngineerFilter{
		DepartmentID: filters.DepartmentID,
		Active:       filters.Active,
		Limit:        filters.Limit,
		Offset:       filters.Offset,
	}
	if filters.Role != nil {
		filter.Roles = []domain.StaffRole{*filters.Role}
	}
	engineers, err := s.store.Engineers().List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return engineers, nil
}

// EnsureAdmin creates the bootstrap admin unless the email already exists.
func (s *StaffService) EnsureAdmin(ctx context.Context, name, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	_, err := s.createEngineer(ctx, EngineerInput{Name: name, Email: email, Password: password, Role: domain.StaffRoleAdmin})
	if apperrors.HasCode(err, apperrors.CodeConflict) {
		return nil
	}
	if err == nil {
		s.logger.Info("bootstrap admin created", zap.String("email", strings.ToLower(email)))
	}
	return err
}
