// Package service implements the business rules of the registration and
// playlist voting subsystems on top of the store contracts.  Every
// failure returned to callers is an *apperr.Error; store and transport
// errors are translated here and never leak to handlers.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/IstFranco/utn-events/internal/apperr"
	"github.com/IstFranco/utn-events/internal/catalog"
	"github.com/IstFranco/utn-events/internal/queue"
	"github.com/IstFranco/utn-events/internal/store"
)

// Publisher delivers domain events after a successful commit.
type Publisher interface {
	Publish(ctx context.Context, env queue.Envelope) error
}

// TrackResolver looks up canonical track metadata in the music catalog.
type TrackResolver interface {
	ResolveTrack(ctx context.Context, externalID string) (catalog.Track, error)
}

// Deps bundles the collaborators shared by the services.  Catalog,
// Publisher, Logger and Now are optional.
type Deps struct {
	Events        store.EventStore
	Users         store.UserStore
	Registrations store.RegistrationStore
	Songs         store.SongStore
	Votes         store.VoteStore

	Catalog   TrackResolver
	Publisher Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

// publishTimeout bounds how long a request waits on the broker.
const publishTimeout = 3 * time.Second

// base carries the ambient collaborators every service needs.
type base struct {
	pub Publisher
	log *slog.Logger
	now func() time.Time
}

func newBase(d Deps) base {
	b := base{pub: d.Publisher, log: d.Logger, now: d.Now}
	if b.log == nil {
		b.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// emit publishes a domain event.  The write it describes is already
// committed, so failures are logged and never returned.
func (b base) emit(ctx context.Context, t queue.Type, key string, data any) {
	if b.pub == nil {
		return
	}
	env, err := queue.NewEnvelope(t, key, data)
	if err != nil {
		b.log.Error("build event", "type", t, "err", err)
		return
	}
	// The client may already be gone; the event still matters.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := b.pub.Publish(ctx, env); err != nil {
		b.log.Warn("publish event failed", "type", t, "id", env.ID, "err", err)
	}
}

// internal wraps an unexpected store failure and logs it once.
func (b base) internal(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	b.log.Error(op+" failed", "err", err)
	return apperr.Internal(op, err)
}

func clampZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
