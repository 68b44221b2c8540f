// Package auth carries the identity of the caller into service calls.
//
// Services never read identity from ambient state: handlers resolve a Caller
// from the bearer token and pass it explicitly.
package auth

import (
	"context"

	"github.com/google/uuid"
)

type Role string

const (
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
	RolePatient Role = "patient"
)

type Caller struct {
	ID   uuid.UUID
	Role Role
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// CanManageDoctor reports whether the caller may read or change doctorID's schedule.
func (c Caller) CanManageDoctor(doctorID uuid.UUID) bool {
	if c.IsAdmin() {
		return true
	}
	return c.Role == RoleDoctor && c.ID == doctorID
}

type callerKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
