package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IstFranco/utn-events/internal/apperr"
	"github.com/IstFranco/utn-events/internal/catalog"
	"github.com/IstFranco/utn-events/internal/model"
	"github.com/IstFranco/utn-events/internal/queue"
	"github.com/IstFranco/utn-events/internal/store/memstore"
)

// tickingClock advances one second on every call.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []queue.Type
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, env queue.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, env.Type)
	return p.err
}

func (p *recordingPublisher) published() []queue.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.Type(nil), p.types...)
}

type fakeCatalog struct {
	tracks map[string]catalog.Track
	err    error
	calls  int
}

func (f *fakeCatalog) ResolveTrack(_ context.Context, id string) (catalog.Track, error) {
	f.calls++
	if f.err != nil {
		return catalog.Track{}, f.err
	}
	t, ok := f.tracks[id]
	if !ok {
		return catalog.Track{}, catalog.ErrTrackNotFound
	}
	return t, nil
}

type fixture struct {
	st      *memstore.Store
	pub     *recordingPublisher
	cat     *fakeCatalog
	deps    Deps
	reg     *RegistrationService
	voting  *VotingService
	events  *EventService
	profile *ProfileService
}

const companyID = 100

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &tickingClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	st := memstore.New()
	st.SetClock(clock.Now)
	f := &fixture{st: st, pub: &recordingPublisher{}, cat: &fakeCatalog{tracks: map[string]catalog.Track{}}}
	f.deps = Deps{
		Events:        st,
		Users:         st,
		Registrations: st,
		Songs:         st,
		Votes:         st,
		Catalog:       f.cat,
		Publisher:     f.pub,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:           clock.Now,
	}
	f.reg = NewRegistrationService(f.deps)
	f.voting = NewVotingService(f.deps)
	f.events = NewEventService(f.deps)
	f.profile = NewProfileService(f.deps)
	return f
}

func (f *fixture) event(t *testing.T, in EventInput) *model.Event {
	t.Helper()
	if in.Name == "" {
		in.Name = "Night"
	}
	if in.Genre == "" {
		in.Genre = "rock"
	}
	ev, err := f.events.CreateEvent(context.Background(), companyID, in)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return ev
}

func (f *fixture) user(age *uint32) uint64 {
	return f.st.AddUser(model.User{Email: "u@example.com", DisplayName: "u", Age: age}).ID
}

func (f *fixture) song(t *testing.T, eventID uint64, title string) *model.Song {
	t.Helper()
	s, err := f.voting.CreateSong(context.Background(), eventID, SongInput{Title: title, Artist: "Band"})
	if err != nil {
		t.Fatalf("CreateSong: %v", err)
	}
	return s
}

func u32(n uint32) *uint32 { return &n }
func i64(n int64) *int64   { return &n }
func str(s string) *string { return &s }

func assertCode(t *testing.T, err error, code string) *apperr.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %s, got nil", code)
	}
	ae, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected *apperr.Error %s, got %T: %v", code, err, err)
	}
	if ae.Code != code {
		t.Fatalf("code = %s, want %s (%v)", ae.Code, code, err)
	}
	return ae
}
