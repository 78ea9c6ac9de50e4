package domain

// ActorType differentiates who performed an action.
type ActorType string

const (
	ActorTypeCustomer ActorType = "customer"
	ActorTypeStaff    ActorType = "staff"
	ActorTypeSystem   ActorType = "system"
)

// Actor identifies the caller of a lifecycle operation. It is passed
// explicitly on every call.
type Actor struct {
	Type ActorType
	ID   string
	Role StaffRole
}

// IDPtr returns the actor id, or nil for anonymous/system actors.
func (a Actor) IDPtr() *string {
	if a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

// SystemActor is used by scheduled jobs.
func SystemActor() Actor {
	return Actor{Type: ActorTypeSystem}
}

// StaffActor builds an actor for an authenticated engineer.
func StaffActor(e *Engineer) Actor {
	return Actor{Type: ActorTypeStaff, ID: e.ID, Role: e.Role}
}

// CustomerActor builds an actor for a customer identified by email.
func CustomerActor(email string) Actor {
	return Actor{Type: ActorTypeCustomer, ID: email}
}
