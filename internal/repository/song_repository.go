package repository

import (
    "context"
    "database/sql"
    "fmt"
    "strings"

    "github.com/IstFranco/utn-events/internal/model"
)

// SongRepo persists playlist songs.  The (event_id, external_id) unique
// key rejects adding the same catalog track twice to one event; MySQL
// allows any number of NULL external ids.
type SongRepo struct {
    db *sql.DB
}

// NewSongRepo returns a SongRepo bound to db.
func NewSongRepo(db *sql.DB) *SongRepo { return &SongRepo{db: db} }

const songColumns = `s.id, s.event_id, s.title, s.artist, s.external_id, s.genre, s.created_at`

func scanSong(row rowScanner) (*model.Song, error) {
    var s model.Song
    var ext sql.NullString
    if err := row.Scan(&s.ID, &s.EventID, &s.Title, &s.Artist, &ext, &s.Genre, &s.CreatedAt); err != nil {
        return nil, err
    }
    s.ExternalID = stringPtr(ext)
    return &s, nil
}

func getSong(ctx context.Context, q queryer, id uint64) (*model.Song, error) {
    s, err := scanSong(q.QueryRowContext(ctx, `SELECT `+songColumns+` FROM songs s WHERE s.id = ?`, id))
    if err != nil {
        return nil, translate(err)
    }
    return s, nil
}

// GetSong returns the song with id or store.ErrNotFound.
func (r *SongRepo) GetSong(ctx context.Context, id uint64) (*model.Song, error) {
    return getSong(ctx, r.db, id)
}

// FindSongByExternalID returns the event's song with the given catalog
// id or store.ErrNotFound.
func (r *SongRepo) FindSongByExternalID(ctx context.Context, eventID uint64, externalID string) (*model.Song, error) {
    s, err := scanSong(r.db.QueryRowContext(ctx,
        `SELECT `+songColumns+` FROM songs s WHERE s.event_id = ? AND s.external_id = ?`, eventID, externalID))
    if err != nil {
        return nil, translate(err)
    }
    return s, nil
}

// CreateSong inserts s.  A duplicate catalog id within the event yields
// store.ErrDuplicate.
func (r *SongRepo) CreateSong(ctx context.Context, s *model.Song) error {
    const q = `INSERT INTO songs (event_id, title, artist, external_id, genre) VALUES (?, ?, ?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q, s.EventID, s.Title, s.Artist, nullString(s.ExternalID), s.Genre)
    if err != nil {
        return translate(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    created, err := r.GetSong(ctx, uint64(id))
    if err != nil {
        return err
    }
    *s = *created
    return nil
}

// UpdateSong overwrites title, artist, genre and event of s.
func (r *SongRepo) UpdateSong(ctx context.Context, s *model.Song) error {
    const q = `UPDATE songs SET event_id = ?, title = ?, artist = ?, genre = ? WHERE id = ?`
    if _, err := r.db.ExecContext(ctx, q, s.EventID, s.Title, s.Artist, s.Genre, s.ID); err != nil {
        return translate(err)
    }
    updated, err := r.GetSong(ctx, s.ID)
    if err != nil {
        return err
    }
    *s = *updated
    return nil
}

// ListSongs returns the event's songs in insertion order.  Ranking is
// applied by the caller from live tallies.
func (r *SongRepo) ListSongs(ctx context.Context, eventID uint64, f model.SongFilter) ([]model.Song, error) {
    q := `SELECT ` + songColumns + ` FROM songs s WHERE s.event_id = ?`
    args := []any{eventID}
    if g := strings.TrimSpace(f.Genre); g != "" {
        q += ` AND LOWER(s.genre) LIKE ?`
        args = append(args, likePattern(g))
    }
    if t := strings.TrimSpace(f.Query); t != "" {
        q += ` AND LOWER(s.title) LIKE ?`
        args = append(args, likePattern(t))
    }
    q += ` ORDER BY s.created_at, s.id`
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, fmt.Errorf("list songs: %w", err)
    }
    defer rows.Close()
    out := make([]model.Song, 0)
    for rows.Next() {
        s, err := scanSong(rows)
        if err != nil {
            return nil, fmt.Errorf("scan song: %w", err)
        }
        out = append(out, *s)
    }
    return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a lower-cased substring pattern with LIKE
// metacharacters escaped.
func likePattern(s string) string {
    return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}
