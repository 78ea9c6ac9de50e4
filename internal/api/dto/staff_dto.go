package dto

import (
	"time"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
)

// DepartmentRequest creates a department.
type DepartmentRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=2000"`
}

// DepartmentStatusRequest toggles whether a department takes new tickets.
type DepartmentStatusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// DepartmentResponse describes a department.
type DepartmentResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateEngineerRequest adds a staff member.
type CreateEngineerRequest struct {
	Name           string  `json:"name" validate:"required,max=255"`
	Email          string  `json:"email" validate:"required,email"`
	Password       string  `json:"password" validate:"required,min=8"`
	Role           string  `json:"role" validate:"omitempty,oneof=ENGINEER DISPATCHER ADMIN"`
	DepartmentID   *string `json:"department_id"`
	Specialization string  `json:"specialization" validate:"max=100"`
	MaxOpenTickets int     `json:"max_open_tickets" validate:"min=0"`
}

// NewStaffResponse maps an engineer without credentials.
func NewStaffResponse(e *domain.Engineer) StaffResponse {
	return StaffResponse{
		ID:             e.ID,
		Name:           e.Name,
		Email:          e.Email,
		Role:           string(e.Role),
		DepartmentID:   e.DepartmentID,
		Specialization: e.Specialization,
		Available:      e.Available,
	}
}

// NewDepartmentResponse maps a department.
func NewDepartmentResponse(d *domain.Department) DepartmentResponse {
	return DepartmentResponse{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt,
	}
}
