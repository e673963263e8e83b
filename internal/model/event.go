package model

import (
    "strings"
    "time"
)

// Tier names a capacity bucket of an event.  Each tier has its own
// independent capacity.
type Tier string

const (
    TierGeneral Tier = "general"
    TierVIP     Tier = "vip"
)

// ParseTier normalises s and reports whether it names a known tier.
func ParseTier(s string) (Tier, bool) {
    switch Tier(strings.ToLower(strings.TrimSpace(s))) {
    case TierGeneral:
        return TierGeneral, true
    case TierVIP:
        return TierVIP, true
    }
    return "", false
}

// Event is a happening organised by a company.  Users register for one
// of its ticket tiers and collaboratively vote on its playlist.
//
// Fields:
//  ID              – primary key identifier.
//  CompanyID       – company that owns the event.
//  Name            – display name.
//  Genre           – music genre tag; songs added to the event must match it.
//  CapacityGeneral – number of general tickets (never changed by registrations).
//  CapacityVIP     – number of VIP tickets (never changed by registrations).
//  MinimumAge      – minimum attendee age (nil when unrestricted).
//  IsActive        – soft-delete marker; inactive events are hidden.
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type Event struct {
    ID              uint64    `json:"id"`               // events.id
    CompanyID       uint64    `json:"company_id"`       // events.company_id
    Name            string    `json:"name"`             // events.name
    Genre           string    `json:"genre"`            // events.genre
    CapacityGeneral uint32    `json:"capacity_general"` // events.capacity_general
    CapacityVIP     uint32    `json:"capacity_vip"`     // events.capacity_vip
    MinimumAge      *uint32   `json:"minimum_age"`      // events.minimum_age (nullable)
    IsActive        bool      `json:"is_active"`        // events.is_active
    CreatedAt       time.Time `json:"created_at"`       // events.created_at
    UpdatedAt       time.Time `json:"updated_at"`       // events.updated_at
}

// Capacity returns the configured capacity of tier t.
func (e *Event) Capacity(t Tier) int {
    if t == TierVIP {
        return int(e.CapacityVIP)
    }
    return int(e.CapacityGeneral)
}

// EventSummary pairs an event with its live count of active registrations.
type EventSummary struct {
    Event
    RegisteredCount int `json:"registered_count"`
}

// TierCounts holds active registration counts per tier.
type TierCounts struct {
    General int
    VIP     int
}

// Of returns the count for tier t.
func (tc TierCounts) Of(t Tier) int {
    if t == TierVIP {
        return tc.VIP
    }
    return tc.General
}
