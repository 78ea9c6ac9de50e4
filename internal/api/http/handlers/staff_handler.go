package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/assetdesk/ticket-lifecycle/internal/api/dto"
	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/service"
	apperrors "github.com/assetdesk/ticket-lifecycle/pkg/util"
)

// StaffHandler exposes staff login and directory endpoints.
type StaffHandler struct {
	authService  *service.AuthService
	staffService *service.StaffService
	binder       *Binder
}

// NewStaffHandler constructs handler.
func NewStaffHandler(authService *service.AuthService, staffService *service.StaffService, binder *Binder) *StaffHandler {
	return &StaffHandler{authService: authService, staffService: staffService, binder: binder}
}

// Login handles POST /auth/staff/login.
func (h *StaffHandler) Login(c *fiber.Ctx) error {
	var req dto.StaffLoginRequest
	if err := h.binder.Body(c, &req); err != nil {
		return err
	}

	staff, token, exp, err := h.authService.LoginStaff(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(dto.StaffLoginResponse{
		Staff: dto.NewStaffResponse(staff),
		Auth:  dto.AuthResponse{Token: token, ExpiresAt: exp},
	})
}

// Me handles GET /staff/me.
func (h *StaffHandler) Me(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewStaffResponse(principal.Engineer))
}

// CreateDepartment handles POST /staff/departments.
func (h *StaffHandler) CreateDepartment(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.DepartmentRequest
	if err := h.binder.Body(c, &req); err != nil {
		return err
	}
	dept, err := h.staffService.CreateDepartment(c.UserContext(), actor, req.Name, req.Description)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewDepartmentResponse(dept))
}

// ListDepartments handles GET /staff/departments?include_inactive=.
func (h *StaffHandler) ListDepartments(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	depts, err := h.staffService.ListDepartments(c.UserContext(), actor, c.QueryBool("include_inactive", false))
	if err != nil {
		return err
	}
	resp := make([]dto.DepartmentResponse, 0, len(depts))
	for i := range depts {
		resp = append(resp, dto.NewDepartmentResponse(&depts[i]))
	}
	return c.JSON(fiber.Map{"departments": resp})
}

// UpdateDepartmentStatus handles PATCH /staff/departments/:id.
func (h *StaffHandler) UpdateDepartmentStatus(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.DepartmentStatusRequest
	if err := h.binder.Body(c, &req); err != nil {
		return err
	}
	dept, err := h.staffService.SetDepartmentActive(c.UserContext(), actor, c.Params("id"), *req.IsActive)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewDepartmentResponse(dept))
}

// CreateEngineer handles POST /staff/engineers.
func (h *StaffHandler) CreateEngineer(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateEngineerRequest
	if err := h.binder.Body(c, &req); err != nil {
		return err
	}
	engineer, err := h.staffService.CreateEngineer(c.UserContext(), actor, service.EngineerInput{
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
		Role:           domain.StaffRole(req.Role),
		DepartmentID:   req.DepartmentID,
		Specialization: req.Specialization,
		MaxOpenTickets: req.MaxOpenTickets,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewStaffResponse(engineer))
}

// ListEngineers handles GET /staff/engineers?role=&department_id=&active=.
func (h *StaffHandler) ListEngineers(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	filters := service.StaffListFilters{
		Limit:  parseIntQuery(c, "limit", 100),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if role := c.Query("role"); role != "" {
		r := domain.StaffRole(role)
		filters.Role = &r
	}
	if dept := c.Query("department_id"); dept != "" {
		filters.DepartmentID = &dept
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return apperrors.NewValidationError("active must be a boolean", nil)
		}
		filters.Active = &active
	}
	engineers, err := h.staffService.ListEngineers(c.UserContext(), actor, filters)
	if err != nil {
		return err
	}
	resp := make([]dto.StaffResponse, 0, len(engineers))
	for i := range engineers {
		resp = append(resp, dto.NewStaffResponse(&engineers[i]))
	}
	return c.JSON(fiber.Map{"engineers": resp})
}
