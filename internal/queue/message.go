// Package queue carries domain events from the HTTP service to
// background consumers.  Events are published after the database commit
// that produced them; consumers must tolerate duplicates and gaps.
package queue

import (
    "encoding/json"
    "fmt"
    "time"

    "github.com/google/uuid"
)

// Type names a domain event.
type Type string

const (
    RegistrationCreated     Type = "registration.created"
    RegistrationReactivated Type = "registration.reactivated"
    RegistrationCancelled   Type = "registration.cancelled"
    VoteCast                Type = "vote.cast"
    VoteRemoved             Type = "vote.removed"
    SongCreated             Type = "song.created"
)

// Envelope wraps every event on the wire.  Key groups events that must
// stay ordered on a partitioned transport; it is the event id for
// registrations and the song id for votes.
type Envelope struct {
    ID         string          `json:"id"`
    Type       Type            `json:"type"`
    Key        string          `json:"key"`
    OccurredAt time.Time       `json:"occurred_at"`
    Data       json.RawMessage `json:"data"`
}

// NewEnvelope marshals data into an envelope with a fresh id.
func NewEnvelope(t Type, key string, data any) (Envelope, error) {
    raw, err := json.Marshal(data)
    if err != nil {
        return Envelope{}, fmt.Errorf("marshal %s: %w", t, err)
    }
    return Envelope{
        ID:         uuid.NewString(),
        Type:       t,
        Key:        key,
        OccurredAt: time.Now().UTC(),
        Data:       raw,
    }, nil
}

// RegistrationEvent is the payload of the registration.* events.
type RegistrationEvent struct {
    RegistrationID   uint64 `json:"registration_id"`
    EventID          uint64 `json:"event_id"`
    EventName        string `json:"event_name"`
    UserID           uint64 `json:"user_id"`
    Tier             string `json:"tier"`
    RemainingGeneral int    `json:"remaining_general"`
    RemainingVIP     int    `json:"remaining_vip"`
}

// VoteEvent is the payload of the vote.* events.
type VoteEvent struct {
    VoteID    uint64 `json:"vote_id"`
    SongID    uint64 `json:"song_id"`
    EventID   uint64 `json:"event_id"`
    Kind      string `json:"kind,omitempty"`
    Anonymous bool   `json:"anonymous"`
    UpCount   int    `json:"up_count"`
    DownCount int    `json:"down_count"`
}

// SongEvent is the payload of song.created.
type SongEvent struct {
    SongID     uint64 `json:"song_id"`
    EventID    uint64 `json:"event_id"`
    Title      string `json:"title"`
    Artist     string `json:"artist"`
    ExternalID string `json:"external_id,omitempty"`
}
