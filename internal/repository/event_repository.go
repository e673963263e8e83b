package repository

import (
    "context"
    "database/sql"
    "fmt"

    "github.com/IstFranco/utn-events/internal/model"
)

// EventRepo manages persistence for events.  Registered counts returned
// with summaries are computed from the registrations table on every
// call; nothing is cached.
type EventRepo struct {
    db *sql.DB
}

// NewEventRepo returns an EventRepo bound to db.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `e.id, e.company_id, e.name, e.genre, e.capacity_general, e.capacity_vip,
                      e.minimum_age, e.is_active, e.created_at, e.updated_at`

// registeredCountExpr counts active registrations of the event aliased e.
const registeredCountExpr = `(SELECT COUNT(*) FROM registrations r
                              WHERE r.event_id = e.id AND r.status = 'active')`

type rowScanner interface {
    Scan(dest ...any) error
}

func scanEvent(row rowScanner, extra ...any) (*model.Event, error) {
    var e model.Event
    var minAge sql.NullInt64
    dest := []any{
        &e.ID, &e.CompanyID, &e.Name, &e.Genre, &e.CapacityGeneral, &e.CapacityVIP,
        &minAge, &e.IsActive, &e.CreatedAt, &e.UpdatedAt,
    }
    if err := row.Scan(append(dest, extra...)...); err != nil {
        return nil, err
    }
    e.MinimumAge = uint32Ptr(minAge)
    return &e, nil
}

// GetEvent returns the event with the given id regardless of its active
// flag, or store.ErrNotFound.
func (r *EventRepo) GetEvent(ctx context.Context, id uint64) (*model.Event, error) {
    e, err := scanEvent(r.db.QueryRowContext(ctx,
        `SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id))
    if err != nil {
        return nil, translate(err)
    }
    return e, nil
}

// GetEventSummary returns the event with its live registered count.
func (r *EventRepo) GetEventSummary(ctx context.Context, id uint64) (*model.EventSummary, error) {
    var count int
    e, err := scanEvent(r.db.QueryRowContext(ctx,
        `SELECT `+eventColumns+`, `+registeredCountExpr+` FROM events e WHERE e.id = ?`, id), &count)
    if err != nil {
        return nil, translate(err)
    }
    return &model.EventSummary{Event: *e, RegisteredCount: count}, nil
}

// ListActiveEvents returns active events ordered by newest first.  When
// genre is not empty only events of that genre (case-insensitive) are
// returned.
func (r *EventRepo) ListActiveEvents(ctx context.Context, genre string) ([]model.EventSummary, error) {
    q := `SELECT ` + eventColumns + `, ` + registeredCountExpr + `
          FROM events e
          WHERE e.is_active = 1`
    args := []any{}
    if genre != "" {
        q += ` AND LOWER(e.genre) = LOWER(?)`
        args = append(args, genre)
    }
    q += ` ORDER BY e.created_at DESC, e.id DESC`
    return r.listSummaries(ctx, q, args...)
}

func (r *EventRepo) listSummaries(ctx context.Context, q string, args ...any) ([]model.EventSummary, error) {
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, fmt.Errorf("list events: %w", err)
    }
    defer rows.Close()
    out := make([]model.EventSummary, 0)
    for rows.Next() {
        var count int
        e, err := scanEvent(rows, &count)
        if err != nil {
            return nil, fmt.Errorf("scan event: %w", err)
        }
        out = append(out, model.EventSummary{Event: *e, RegisteredCount: count})
    }
    return out, rows.Err()
}

// CreateEvent inserts e and populates its ID and DB-default fields.
func (r *EventRepo) CreateEvent(ctx context.Context, e *model.Event) error {
    const q = `INSERT INTO events (company_id, name, genre, capacity_general, capacity_vip, minimum_age, is_active)
               VALUES (?, ?, ?, ?, ?, ?, 1)`
    res, err := r.db.ExecContext(ctx, q, e.CompanyID, e.Name, e.Genre, e.CapacityGeneral, e.CapacityVIP, nullUint32(e.MinimumAge))
    if err != nil {
        return translate(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    // Query back the full row to populate timestamps and defaults
    created, err := r.GetEvent(ctx, uint64(id))
    if err != nil {
        return err
    }
    *e = *created
    return nil
}

// UpdateEvent overwrites the mutable fields of e.
func (r *EventRepo) UpdateEvent(ctx context.Context, e *model.Event) error {
    const q = `UPDATE events
               SET name = ?, genre = ?, capacity_general = ?, capacity_vip = ?, minimum_age = ?
               WHERE id = ?`
    if _, err := r.db.ExecContext(ctx, q, e.Name, e.Genre, e.CapacityGeneral, e.CapacityVIP, nullUint32(e.MinimumAge), e.ID); err != nil {
        return translate(err)
    }
    updated, err := r.GetEvent(ctx, e.ID)
    if err != nil {
        return err
    }
    *e = *updated
    return nil
}

// DeactivateEvent clears the active flag.  Registrations and songs are
// kept.
func (r *EventRepo) DeactivateEvent(ctx context.Context, id uint64) error {
    res, err := r.db.ExecContext(ctx, `UPDATE events SET is_active = 0 WHERE id = ?`, id)
    if err != nil {
        return err
    }
    if n, _ := res.RowsAffected(); n == 0 {
        // MySQL reports 0 when the row already had is_active = 0, so
        // confirm the row exists before reporting not found.
        if _, err := r.GetEvent(ctx, id); err != nil {
            return err
        }
    }
    return nil
}
