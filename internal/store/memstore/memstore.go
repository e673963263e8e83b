// Package memstore is an in-memory implementation of the store
// contracts.  It enforces the same unique keys as the MySQL schema and
// emulates the event row lock with a mutex per event, which makes it
// suitable for exercising the service layer under concurrency without a
// database.
//
// Like the foreign keys of the schema, registrations and user votes
// must reference a user added with AddUser.
//
// Writes made inside WithEventLock are applied immediately; there is no
// rollback.  Callers only write as the final step of the callback, so
// nothing is left half-applied when the callback fails.
package memstore

import (
    "context"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/IstFranco/utn-events/internal/model"
    "github.com/IstFranco/utn-events/internal/store"
)

// Store holds every table in maps guarded by mu.
type Store struct {
    mu  sync.Mutex
    now func() time.Time

    eventLocks map[uint64]*sync.Mutex

    nextID        uint64
    events        map[uint64]*model.Event
    users         map[uint64]*model.User
    registrations map[uint64]*model.Registration
    songs         map[uint64]*model.Song
    votes         map[uint64]*model.Vote
}

var (
    _ store.EventStore        = (*Store)(nil)
    _ store.UserStore         = (*Store)(nil)
    _ store.RegistrationStore = (*Store)(nil)
    _ store.SongStore         = (*Store)(nil)
    _ store.VoteStore         = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
    return &Store{
        now:           time.Now,
        eventLocks:    make(map[uint64]*sync.Mutex),
        events:        make(map[uint64]*model.Event),
        users:         make(map[uint64]*model.User),
        registrations: make(map[uint64]*model.Registration),
        songs:         make(map[uint64]*model.Song),
        votes:         make(map[uint64]*model.Vote),
    }
}

// SetClock replaces the timestamp source used for created/updated columns.
func (s *Store) SetClock(now func() time.Time) {
    s.mu.Lock()
    s.now = now
    s.mu.Unlock()
}

func (s *Store) id() uint64 {
    s.nextID++
    return s.nextID
}

// AddUser inserts u as the identity provider would.  A zero ID is
// assigned.
func (s *Store) AddUser(u model.User) *model.User {
    s.mu.Lock()
    defer s.mu.Unlock()
    if u.ID == 0 {
        u.ID = s.id()
    } else if u.ID > s.nextID {
        s.nextID = u.ID
    }
    now := s.now()
    u.CreatedAt, u.UpdatedAt = now, now
    s.users[u.ID] = &u
    cp := u
    return &cp
}

// RegistrationRows returns copies of every registration row of the
// event, cancelled ones included.
func (s *Store) RegistrationRows(eventID uint64) []model.Registration {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := make([]model.Registration, 0)
    for _, r := range s.registrations {
        if r.EventID == eventID {
            out = append(out, *r)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out
}

// VoteRows returns copies of every vote row of the song.
func (s *Store) VoteRows(songID uint64) []model.Vote {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := make([]model.Vote, 0)
    for _, v := range s.votes {
        if v.SongID == songID {
            out = append(out, *v)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out
}

// events

func (s *Store) GetEvent(_ context.Context, id uint64) (*model.Event, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    e, ok := s.events[id]
    if !ok {
        return nil, store.ErrNotFound
    }
    cp := *e
    return &cp, nil
}

func (s *Store) GetEventSummary(_ context.Context, id uint64) (*model.EventSummary, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    e, ok := s.events[id]
    if !ok {
        return nil, store.ErrNotFound
    }
    return &model.EventSummary{Event: *e, RegisteredCount: s.activeCountLocked(id, "")}, nil
}

func (s *Store) ListActiveEvents(_ context.Context, genre string) ([]model.EventSummary, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := make([]model.EventSummary, 0)
    for _, e := range s.events {
        if !e.IsActive {
            continue
        }
        if genre != "" && !strings.EqualFold(e.Genre, genre) {
            continue
        }
        out = append(out, model.EventSummary{Event: *e, RegisteredCount: s.activeCountLocked(e.ID, "")})
    }
    sort.Slice(out, func(i, j int) bool {
        if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
            return out[i].CreatedAt.After(out[j].CreatedAt)
        }
        return out[i].ID > out[j].ID
    })
    return out, nil
}

func (s *Store) CreateEvent(_ context.Context, e *model.Event) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    now := s.now()
    cp := *e
    cp.ID = s.id()
    cp.IsActive = true
    cp.CreatedAt, cp.UpdatedAt = now, now
    s.events[cp.ID] = &cp
    *e = cp
    return nil
}

func (s *Store) UpdateEvent(_ context.Context, e *model.Event) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    cur, ok := s.events[e.ID]
    if !ok {
        return store.ErrNotFound
    }
    cur.Name = e.Name
    cur.Genre = e.Genre
    cur.CapacityGeneral = e.CapacityGeneral
    cur.CapacityVIP = e.CapacityVIP
    cur.MinimumAge = e.MinimumAge
    cur.UpdatedAt = s.now()
    *e = *cur
    return nil
}

func (s *Store) DeactivateEvent(_ context.Context, id uint64) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    e, ok := s.events[id]
    if !ok {
        return store.ErrNotFound
    }
    e.IsActive = false
    e.UpdatedAt = s.now()
    return nil
}

// users

func (s *Store) GetUser(_ context.Context, id uint64) (*model.User, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    u, ok := s.users[id]
    if !ok {
        return nil, store.ErrNotFound
    }
    cp := *u
    return &cp, nil
}

func (s *Store) UpdateUserAge(_ context.Context, id uint64, age uint32) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    u, ok := s.users[id]
    if !ok {
        return store.ErrNotFound
    }
    a := age
    u.Age = &a
    u.UpdatedAt = s.now()
    return nil
}

// registrations

func (s *Store) eventLock(eventID uint64) *sync.Mutex {
    s.mu.Lock()
    defer s.mu.Unlock()
    l, ok := s.eventLocks[eventID]
    if !ok {
        l = &sync.Mutex{}
        s.eventLocks[eventID] = l
    }
    return l
}

// WithEventLock serializes callers per event the way SELECT ... FOR
// UPDATE does on the events row.
func (s *Store) WithEventLock(ctx context.Context, eventID uint64, fn func(tx store.RegistrationTx) error) error {
    l := s.eventLock(eventID)
    l.Lock()
    defer l.Unlock()

    ev, err := s.GetEvent(ctx, eventID)
    if err != nil {
        return err
    }
    return fn(&lockedEvent{s: s, event: ev})
}

type lockedEvent struct {
    s     *Store
    event *model.Event
}

func (t *lockedEvent) Event() *model.Event { return t.event }

func (t *lockedEvent) User(ctx context.Context, userID uint64) (*model.User, error) {
    return t.s.GetUser(ctx, userID)
}

func (t *lockedEvent) FindRegistration(_ context.Context, userID uint64) (*model.Registration, error) {
    t.s.mu.Lock()
    defer t.s.mu.Unlock()
    if r := t.s.findRegistrationLocked(t.event.ID, userID); r != nil {
        cp := *r
        return &cp, nil
    }
    return nil, store.ErrNotFound
}

func (t *lockedEvent) CountActive(_ context.Context, tier model.Tier) (int, error) {
    t.s.mu.Lock()
    defer t.s.mu.Unlock()
    return t.s.activeCountLocked(t.event.ID, tier), nil
}

func (t *lockedEvent) InsertRegistration(_ context.Context, reg *model.Registration) error {
    t.s.mu.Lock()
    defer t.s.mu.Unlock()
    if _, ok := t.s.users[reg.UserID]; !ok {
        return store.ErrNotFound
    }
    if t.s.findRegistrationLocked(t.event.ID, reg.UserID) != nil {
        return store.ErrDuplicate
    }
    cp := *reg
    cp.ID = t.s.id()
    cp.EventID = t.event.ID
    cp.Status = model.RegistrationActive
    cp.UpdatedAt = t.s.now()
    if cp.RegisteredAt.IsZero() {
        cp.RegisteredAt = cp.UpdatedAt
    }
    t.s.registrations[cp.ID] = &cp
    *reg = cp
    return nil
}

func (t *lockedEvent) ReactivateRegistration(_ context.Context, reg *model.Registration) (bool, error) {
    t.s.mu.Lock()
    defer t.s.mu.Unlock()
    cur, ok := t.s.registrations[reg.ID]
    if !ok || cur.Status != model.RegistrationCancelled {
        return false, nil
    }
    cur.Status = model.RegistrationActive
    cur.Tier = reg.Tier
    cur.RegisteredAt = reg.RegisteredAt
    cur.UpdatedAt = t.s.now()
    *reg = *cur
    return true, nil
}

func (s *Store) findRegistrationLocked(eventID, userID uint64) *model.Registration {
    for _, r := range s.registrations {
        if r.EventID == eventID && r.UserID == userID {
            return r
        }
    }
    return nil
}

// activeCountLocked counts active registrations of the event; an empty
// tier counts both.
func (s *Store) activeCountLocked(eventID uint64, tier model.Tier) int {
    n := 0
    for _, r := range s.registrations {
        if r.EventID != eventID || !r.IsActive() {
            continue
        }
        if tier == "" || r.Tier == tier {
            n++
        }
    }
    return n
}

func (s *Store) CancelRegistration(_ context.Context, eventID, userID uint64) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    r := s.findRegistrationLocked(eventID, userID)
    if r == nil || !r.IsActive() {
        return false, nil
    }
    r.Status = model.RegistrationCancelled
    r.UpdatedAt = s.now()
    return true, nil
}

func (s *Store) CountActiveByTier(_ context.Context, eventID uint64) (model.TierCounts, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    return model.TierCounts{
        General: s.activeCountLocked(eventID, model.TierGeneral),
        VIP:     s.activeCountLocked(eventID, model.TierVIP),
    }, nil
}

func (s *Store) ListRegisteredEvents(_ context.Context, userID uint64) ([]model.EventSummary, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    regs := make([]*model.Registration, 0)
    for _, r := range s.registrations {
        if r.UserID == userID && r.IsActive() {
            regs = append(regs, r)
        }
    }
    sort.Slice(regs, func(i, j int) bool { return regs[i].RegisteredAt.After(regs[j].RegisteredAt) })
    out := make([]model.EventSummary, 0, len(regs))
    for _, r := range regs {
        e, ok := s.events[r.EventID]
        if !ok || !e.IsActive {
            continue
        }
        out = append(out, model.EventSummary{Event: *e, RegisteredCount: s.activeCountLocked(e.ID, "")})
    }
    return out, nil
}

// songs

func (s *Store) GetSong(_ context.Context, id uint64) (*model.Song, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    song, ok := s.songs[id]
    if !ok {
        return nil, store.ErrNotFound
    }
    cp := *song
    return &cp, nil
}

func (s *Store) FindSongByExternalID(_ context.Context, eventID uint64, externalID string) (*model.Song, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if song := s.findSongByExternalLocked(eventID, externalID); song != nil {
        cp := *song
        return &cp, nil
    }
    return nil, store.ErrNotFound
}

func (s *Store) findSongByExternalLocked(eventID uint64, externalID string) *model.Song {
    for _, song := range s.songs {
        if song.EventID == eventID && song.ExternalID != nil && *song.ExternalID == externalID {
            return song
        }
    }
    return nil
}

func (s *Store) CreateSong(_ context.Context, song *model.Song) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if _, ok := s.events[song.EventID]; !ok {
        return store.ErrNotFound
    }
    if song.ExternalID != nil && s.findSongByExternalLocked(song.EventID, *song.ExternalID) != nil {
        return store.ErrDuplicate
    }
    cp := *song
    cp.ID = s.id()
    cp.CreatedAt = s.now()
    s.songs[cp.ID] = &cp
    *song = cp
    return nil
}

func (s *Store) UpdateSong(_ context.Context, song *model.Song) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    cur, ok := s.songs[song.ID]
    if !ok {
        return store.ErrNotFound
    }
    if cur.EventID != song.EventID && cur.ExternalID != nil &&
        s.findSongByExternalLocked(song.EventID, *cur.ExternalID) != nil {
        return store.ErrDuplicate
    }
    cur.EventID = song.EventID
    cur.Title = song.Title
    cur.Artist = song.Artist
    cur.Genre = song.Genre
    *song = *cur
    return nil
}

func (s *Store) ListSongs(_ context.Context, eventID uint64, f model.SongFilter) ([]model.Song, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := make([]model.Song, 0)
    for _, song := range s.songs {
        if song.EventID == eventID && f.Matches(song) {
            out = append(out, *song)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

// votes

func (s *Store) UpsertVote(_ context.Context, v *model.Vote) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if _, ok := s.songs[v.SongID]; !ok {
        return store.ErrNotFound
    }
    if v.UserID != nil {
        if _, ok := s.users[*v.UserID]; !ok {
            return store.ErrNotFound
        }
    }
    now := s.now()
    for _, cur := range s.votes {
        if cur.SongID == v.SongID && cur.VoterKey == v.VoterKey {
            cur.Kind = v.Kind
            cur.UserID = v.UserID
            cur.UpdatedAt = now
            *v = *cur
            return nil
        }
    }
    cp := *v
    cp.ID = s.id()
    cp.CreatedAt, cp.UpdatedAt = now, now
    s.votes[cp.ID] = &cp
    *v = cp
    return nil
}

func (s *Store) GetVote(_ context.Context, id uint64) (*model.Vote, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    v, ok := s.votes[id]
    if !ok {
        return nil, store.ErrNotFound
    }
    cp := *v
    return &cp, nil
}

func (s *Store) DeleteVote(_ context.Context, id uint64) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if _, ok := s.votes[id]; !ok {
        return false, nil
    }
    delete(s.votes, id)
    return true, nil
}

func (s *Store) CountVotes(_ context.Context, songID uint64) (model.Tally, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var t model.Tally
    for _, v := range s.votes {
        if v.SongID == songID {
            t.Add(v.Kind)
        }
    }
    return t, nil
}

func (s *Store) TalliesByEvent(_ context.Context, eventID uint64) (map[uint64]model.Tally, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := make(map[uint64]model.Tally)
    for _, v := range s.votes {
        song, ok := s.songs[v.SongID]
        if !ok || song.EventID != eventID {
            continue
        }
        t := out[v.SongID]
        t.Add(v.Kind)
        out[v.SongID] = t
    }
    return out, nil
}

func (s *Store) VotesByVoter(_ context.Context, eventID uint64, voterKey string) (map[uint64]model.Vote, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := make(map[uint64]model.Vote)
    for _, v := range s.votes {
        song, ok := s.songs[v.SongID]
        if !ok || song.EventID != eventID || v.VoterKey != voterKey {
            continue
        }
        out[v.SongID] = *v
    }
    return out, nil
}
