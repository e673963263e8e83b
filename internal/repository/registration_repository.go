package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"

    "github.com/IstFranco/utn-events/internal/model"
    "github.com/IstFranco/utn-events/internal/store"
)

// RegistrationRepo persists registrations.  Capacity checks and the
// write that follows them run inside WithEventLock, which holds a
// row-level exclusive lock (SELECT ... FOR UPDATE) on the event for the
// whole transaction.  Concurrent registrations for the same event queue
// on that lock, so the count they observe always includes every
// registration committed before them.
type RegistrationRepo struct {
    db *sql.DB
}

// NewRegistrationRepo returns a new RegistrationRepo bound to db.
func NewRegistrationRepo(db *sql.DB) *RegistrationRepo { return &RegistrationRepo{db: db} }

// DB exposes the underlying sql.DB.
func (r *RegistrationRepo) DB() *sql.DB { return r.db }

const registrationColumns = `id, user_id, event_id, tier, status, registered_at, updated_at`

func scanRegistration(row rowScanner) (*model.Registration, error) {
    var reg model.Registration
    var tier, status string
    if err := row.Scan(&reg.ID, &reg.UserID, &reg.EventID, &tier, &status, &reg.RegisteredAt, &reg.UpdatedAt); err != nil {
        return nil, err
    }
    reg.Tier = model.Tier(tier)
    reg.Status = model.RegistrationStatus(status)
    return &reg, nil
}

// WithEventLock begins a READ COMMITTED transaction, locks the event row
// and runs fn.  The transaction commits only when fn returns nil; any
// error from fn is returned unchanged after rollback.
func (r *RegistrationRepo) WithEventLock(ctx context.Context, eventID uint64, fn func(tx store.RegistrationTx) error) error {
    // READ COMMITTED lets every statement after the lock see rows
    // committed by the previous lock holder.
    tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
    if err != nil {
        return fmt.Errorf("begin transaction: %w", err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    ev, err := scanEvent(tx.QueryRowContext(ctx,
        `SELECT `+eventColumns+` FROM events e WHERE e.id = ? FOR UPDATE`, eventID))
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return store.ErrNotFound
        }
        return fmt.Errorf("lock event row: %w", err)
    }

    if err := fn(&registrationTx{tx: tx, event: ev}); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return fmt.Errorf("commit transaction: %w", translate(err))
    }
    committed = true
    return nil
}

// registrationTx implements store.RegistrationTx on a locked event.
type registrationTx struct {
    tx    *sql.Tx
    event *model.Event
}

func (t *registrationTx) Event() *model.Event { return t.event }

func (t *registrationTx) User(ctx context.Context, userID uint64) (*model.User, error) {
    return getUser(ctx, t.tx, userID)
}

func (t *registrationTx) FindRegistration(ctx context.Context, userID uint64) (*model.Registration, error) {
    // FOR UPDATE also locks the user's row so a concurrent unregister
    // cannot flip it between this read and the reactivation below.
    reg, err := scanRegistration(t.tx.QueryRowContext(ctx,
        `SELECT `+registrationColumns+` FROM registrations WHERE event_id = ? AND user_id = ? FOR UPDATE`,
        t.event.ID, userID))
    if err != nil {
        return nil, translate(err)
    }
    return reg, nil
}

func (t *registrationTx) CountActive(ctx context.Context, tier model.Tier) (int, error) {
    var n int
    err := t.tx.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM registrations WHERE event_id = ? AND tier = ? AND status = 'active'`,
        t.event.ID, string(tier)).Scan(&n)
    if err != nil {
        return 0, fmt.Errorf("count active registrations: %w", err)
    }
    return n, nil
}

func (t *registrationTx) InsertRegistration(ctx context.Context, reg *model.Registration) error {
    const q = `INSERT INTO registrations (user_id, event_id, tier, status, registered_at) VALUES (?, ?, ?, 'active', ?)`
    res, err := t.tx.ExecContext(ctx, q, reg.UserID, t.event.ID, string(reg.Tier), reg.RegisteredAt)
    if err != nil {
        return translate(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    created, err := scanRegistration(t.tx.QueryRowContext(ctx,
        `SELECT `+registrationColumns+` FROM registrations WHERE id = ?`, id))
    if err != nil {
        return err
    }
    *reg = *created
    return nil
}

func (t *registrationTx) ReactivateRegistration(ctx context.Context, reg *model.Registration) (bool, error) {
    // The status guard makes the transition cancelled -> active only.
    const q = `UPDATE registrations SET status = 'active', tier = ?, registered_at = ?
               WHERE id = ? AND status = 'cancelled'`
    res, err := t.tx.ExecContext(ctx, q, string(reg.Tier), reg.RegisteredAt, reg.ID)
    if err != nil {
        return false, translate(err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    if n == 0 {
        return false, nil
    }
    updated, err := scanRegistration(t.tx.QueryRowContext(ctx,
        `SELECT `+registrationColumns+` FROM registrations WHERE id = ?`, reg.ID))
    if err != nil {
        return false, err
    }
    *reg = *updated
    return true, nil
}

// CancelRegistration flips the user's active registration to cancelled
// in a single guarded UPDATE.  Of two racing calls only one changes the
// row; the other reports false.
func (r *RegistrationRepo) CancelRegistration(ctx context.Context, eventID, userID uint64) (bool, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE registrations SET status = 'cancelled' WHERE event_id = ? AND user_id = ? AND status = 'active'`,
        eventID, userID)
    if err != nil {
        return false, fmt.Errorf("cancel registration: %w", err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

// CountActiveByTier returns live active counts for both tiers.
func (r *RegistrationRepo) CountActiveByTier(ctx context.Context, eventID uint64) (model.TierCounts, error) {
    var tc model.TierCounts
    rows, err := r.db.QueryContext(ctx,
        `SELECT tier, COUNT(*) FROM registrations WHERE event_id = ? AND status = 'active' GROUP BY tier`,
        eventID)
    if err != nil {
        return tc, fmt.Errorf("count registrations: %w", err)
    }
    defer rows.Close()
    for rows.Next() {
        var tier string
        var n int
        if err := rows.Scan(&tier, &n); err != nil {
            return tc, err
        }
        switch model.Tier(tier) {
        case model.TierGeneral:
            tc.General = n
        case model.TierVIP:
            tc.VIP = n
        }
    }
    return tc, rows.Err()
}

// ListRegisteredEvents returns the events the user holds an active
// registration for, each with its live registered count.  Inactive
// events are excluded.
func (r *RegistrationRepo) ListRegisteredEvents(ctx context.Context, userID uint64) ([]model.EventSummary, error) {
    q := `SELECT ` + eventColumns + `, ` + registeredCountExpr + `
          FROM events e
          JOIN registrations mine ON mine.event_id = e.id
          WHERE mine.user_id = ? AND mine.status = 'active' AND e.is_active = 1
          ORDER BY mine.registered_at DESC`
    rows, err := r.db.QueryContext(ctx, q, userID)
    if err != nil {
        return nil, fmt.Errorf("list registered events: %w", err)
    }
    defer rows.Close()
    out := make([]model.EventSummary, 0)
    for rows.Next() {
        var count int
        e, err := scanEvent(rows, &count)
        if err != nil {
            return nil, err
        }
        out = append(out, model.EventSummary{Event: *e, RegisteredCount: count})
    }
    return out, rows.Err()
}
