package dto

import "time"

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse carries an issued bearer token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StaffResponse describes an engineer, dispatcher or admin.
type StaffResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Role           string  `json:"role"`
	DepartmentID   *string `json:"department_id"`
	Specialization string  `json:"specialization,omitempty"`
	Available      bool    `json:"available"`
}

// StaffLoginResponse is returned by POST /auth/staff/login.
type StaffLoginResponse struct {
	Staff StaffResponse `json:"staff"`
	Auth  AuthResponse  `json:"auth"`
}
