package model

import "time"

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
    RegistrationActive    RegistrationStatus = "active"
    RegistrationCancelled RegistrationStatus = "cancelled"
)

// Registration records a user's claim on one ticket of one tier of an
// event.  There is at most one row per (user, event); cancelling flips
// the status and registering again reactivates the same row.
//
// Fields:
//  ID           – primary key identifier.
//  UserID       – registered user.
//  EventID      – event registered for.
//  Tier         – ticket tier (general, vip).
//  Status       – active or cancelled.
//  RegisteredAt – time of the last (re)activation.
//  UpdatedAt    – last status change.
type Registration struct {
    ID           uint64             `json:"id"`            // registrations.id
    UserID       uint64             `json:"user_id"`       // registrations.user_id
    EventID      uint64             `json:"event_id"`      // registrations.event_id
    Tier         Tier               `json:"tier"`          // registrations.tier
    Status       RegistrationStatus `json:"status"`        // registrations.status
    RegisteredAt time.Time          `json:"registered_at"` // registrations.registered_at
    UpdatedAt    time.Time          `json:"updated_at"`    // registrations.updated_at
}

// IsActive reports whether the registration counts against capacity.
func (r *Registration) IsActive() bool { return r.Status == RegistrationActive }
