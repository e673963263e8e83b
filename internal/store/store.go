// Package store declares the persistence contracts used by the service
// layer.  The MySQL implementation lives in internal/repository; an
// in-memory implementation used by tests lives in store/memstore.
//
// Implementations report a missing row with ErrNotFound and a violated
// uniqueness constraint with ErrDuplicate so that the service layer can
// translate both into business errors.
package store

import (
	"context"
	"errors"

	"github.com/IstFranco/utn-events/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a write violates a unique key.
var ErrDuplicate = errors.New("duplicate key")

// A write that references a missing user, event or company also
// reports ErrNotFound.

// EventStore persists events.
type EventStore interface {
	GetEvent(ctx context.Context, id uint64) (*model.Event, error)
	GetEventSummary(ctx context.Context, id uint64) (*model.EventSummary, error)
	ListActiveEvents(ctx context.Context, genre string) ([]model.EventSummary, error)
	CreateEvent(ctx context.Context, e *model.Event) error
	UpdateEvent(ctx context.Context, e *model.Event) error
	DeactivateEvent(ctx context.Context, id uint64) error
}

// UserStore reads user profiles.
type UserStore interface {
	GetUser(ctx context.Context, id uint64) (*model.User, error)
	UpdateUserAge(ctx context.Context, id uint64, age uint32) error
}

// RegistrationTx is the view of the registration tables available while
// the event row is locked.  All reads observe every registration
// committed before the lock was granted.
type RegistrationTx interface {
	// Event returns the locked event.
	Event() *model.Event
	// User reads a user profile on the locked connection, or
	// ErrNotFound.
	User(ctx context.Context, userID uint64) (*model.User, error)
	// FindRegistration returns the user's row for the locked event in
	// any status, or ErrNotFound.
	FindRegistration(ctx context.Context, userID uint64) (*model.Registration, error)
	// CountActive counts active registrations of tier t.
	CountActive(ctx context.Context, t model.Tier) (int, error)
	// InsertRegistration inserts reg and fills its ID and timestamps.
	InsertRegistration(ctx context.Context, reg *model.Registration) error
	// ReactivateRegistration flips reg from cancelled to active with the
	// tier and timestamp carried by reg.  It reports false when the row
	// was no longer cancelled.
	ReactivateRegistration(ctx context.Context, reg *model.Registration) (bool, error)
}

// RegistrationStore persists registrations.
type RegistrationStore interface {
	// WithEventLock runs fn while holding an exclusive lock on the event.
	// Writes made through the tx are committed only when fn returns nil.
	// It returns ErrNotFound when the event does not exist.
	WithEventLock(ctx context.Context, eventID uint64, fn func(tx RegistrationTx) error) error
	// CancelRegistration flips an active registration to cancelled and
	// reports whether a row changed.
	CancelRegistration(ctx context.Context, eventID, userID uint64) (bool, error)
	CountActiveByTier(ctx context.Context, eventID uint64) (model.TierCounts, error)
	ListRegisteredEvents(ctx context.Context, userID uint64) ([]model.EventSummary, error)
}

// SongStore persists songs.
type SongStore interface {
	GetSong(ctx context.Context, id uint64) (*model.Song, error)
	FindSongByExternalID(ctx context.Context, eventID uint64, externalID string) (*model.Song, error)
	CreateSong(ctx context.Context, s *model.Song) error
	UpdateSong(ctx context.Context, s *model.Song) error
	ListSongs(ctx context.Context, eventID uint64, f model.SongFilter) ([]model.Song, error)
}

// VoteStore persists votes.  Tallies are always counted from the vote
// rows; no counter is stored.
type VoteStore interface {
	// UpsertVote inserts v or, when the voter already voted on the song,
	// overwrites the kind in place.  ID and timestamps are filled in.
	UpsertVote(ctx context.Context, v *model.Vote) error
	GetVote(ctx context.Context, id uint64) (*model.Vote, error)
	DeleteVote(ctx context.Context, id uint64) (bool, error)
	CountVotes(ctx context.Context, songID uint64) (model.Tally, error)
	TalliesByEvent(ctx context.Context, eventID uint64) (map[uint64]model.Tally, error)
	VotesByVoter(ctx context.Context, eventID uint64, voterKey string) (map[uint64]model.Vote, error)
}
