package domain

import "time"

// Department groups engineers and routes tickets. Only active departments
// accept new tickets; existing tickets keep their department after it is
// deactivated.
type Department struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AcceptsTickets reports whether new tickets may be filed under d.
func (d Department) AcceptsTickets() bool {
	return d.IsActive
}
