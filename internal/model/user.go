package model

import "time"

// User represents an attendee account as stored in the `users` table.
// Accounts are provisioned by the external identity provider; this
// service only reads them and maintains the profile age used by the
// registration age gate.
//
// Fields:
//  ID          – primary key identifier (the token subject).
//  Email       – unique email address.
//  DisplayName – name shown to other users.
//  Age         – age in years; nil until the user fills in the profile.
//  CreatedAt   – timestamp of creation.
//  UpdatedAt   – timestamp of last update.
type User struct {
    ID          uint64    `json:"id"`           // users.id
    Email       string    `json:"email"`        // users.email
    DisplayName string    `json:"display_name"` // users.display_name
    Age         *uint32   `json:"age"`          // users.age (nullable)
    CreatedAt   time.Time `json:"created_at"`   // users.created_at
    UpdatedAt   time.Time `json:"updated_at"`   // users.updated_at
}

// Company represents an event organiser in the `companies` table.  Like
// users, companies are provisioned externally; events reference them
// through CompanyID.
type Company struct {
    ID        uint64    `json:"id"`         // companies.id
    Name      string    `json:"name"`       // companies.name
    CreatedAt time.Time `json:"created_at"` // companies.created_at
}

// Roles carried in the access token's "role" claim.
const (
    RoleUser    = "USER"
    RoleCompany = "COMPANY"
)
