package repository

import (
    "context"
    "database/sql"
    "fmt"

    "github.com/IstFranco/utn-events/internal/model"
)

// VoteRepo persists votes.  The (song_id, voter_key) unique key backs
// the one-vote-per-identity rule; UpsertVote relies on it through
// INSERT ... ON DUPLICATE KEY UPDATE so that changing a vote never
// creates a second row, even under concurrent requests.
type VoteRepo struct {
    db *sql.DB
}

// NewVoteRepo returns a VoteRepo bound to db.
func NewVoteRepo(db *sql.DB) *VoteRepo { return &VoteRepo{db: db} }

const voteColumns = `id, song_id, user_id, voter_key, kind, created_at, updated_at`

func scanVote(row rowScanner) (*model.Vote, error) {
    var v model.Vote
    var userID sql.NullInt64
    var kind string
    if err := row.Scan(&v.ID, &v.SongID, &userID, &v.VoterKey, &kind, &v.CreatedAt, &v.UpdatedAt); err != nil {
        return nil, err
    }
    if userID.Valid {
        uid := uint64(userID.Int64)
        v.UserID = &uid
    }
    v.Kind = model.VoteKind(kind)
    return &v, nil
}

// UpsertVote inserts the vote or replaces the kind of the voter's
// existing vote on the song.
func (r *VoteRepo) UpsertVote(ctx context.Context, v *model.Vote) error {
    // The row alias needs MySQL 8.0.19 or later.
    const q = `INSERT INTO votes (song_id, user_id, voter_key, kind) VALUES (?, ?, ?, ?) AS new
               ON DUPLICATE KEY UPDATE kind = new.kind, user_id = new.user_id`
    var userID sql.NullInt64
    if v.UserID != nil {
        userID = sql.NullInt64{Int64: int64(*v.UserID), Valid: true}
    }
    if _, err := r.db.ExecContext(ctx, q, v.SongID, userID, v.VoterKey, string(v.Kind)); err != nil {
        return translate(err)
    }
    // LastInsertId is unreliable for the update branch, so read the row
    // back through the unique key.
    stored, err := scanVote(r.db.QueryRowContext(ctx,
        `SELECT `+voteColumns+` FROM votes WHERE song_id = ? AND voter_key = ?`, v.SongID, v.VoterKey))
    if err != nil {
        return translate(err)
    }
    *v = *stored
    return nil
}

// GetVote returns the vote with id or store.ErrNotFound.
func (r *VoteRepo) GetVote(ctx context.Context, id uint64) (*model.Vote, error) {
    v, err := scanVote(r.db.QueryRowContext(ctx, `SELECT `+voteColumns+` FROM votes WHERE id = ?`, id))
    if err != nil {
        return nil, translate(err)
    }
    return v, nil
}

// DeleteVote removes the vote and reports whether a row was deleted.
func (r *VoteRepo) DeleteVote(ctx context.Context, id uint64) (bool, error) {
    res, err := r.db.ExecContext(ctx, `DELETE FROM votes WHERE id = ?`, id)
    if err != nil {
        return false, fmt.Errorf("delete vote: %w", err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

// CountVotes counts the song's current vote rows by kind.
func (r *VoteRepo) CountVotes(ctx context.Context, songID uint64) (model.Tally, error) {
    var t model.Tally
    err := r.db.QueryRowContext(ctx,
        `SELECT COALESCE(SUM(kind = 'up'), 0), COALESCE(SUM(kind = 'down'), 0) FROM votes WHERE song_id = ?`,
        songID).Scan(&t.Up, &t.Down)
    if err != nil {
        return t, fmt.Errorf("count votes: %w", err)
    }
    return t, nil
}

// TalliesByEvent counts votes for every song of the event that has at
// least one vote.
func (r *VoteRepo) TalliesByEvent(ctx context.Context, eventID uint64) (map[uint64]model.Tally, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT v.song_id, SUM(v.kind = 'up'), SUM(v.kind = 'down')
         FROM votes v
         JOIN songs s ON s.id = v.song_id
         WHERE s.event_id = ?
         GROUP BY v.song_id`, eventID)
    if err != nil {
        return nil, fmt.Errorf("tally votes: %w", err)
    }
    defer rows.Close()
    out := make(map[uint64]model.Tally)
    for rows.Next() {
        var songID uint64
        var t model.Tally
        if err := rows.Scan(&songID, &t.Up, &t.Down); err != nil {
            return nil, err
        }
        out[songID] = t
    }
    return out, rows.Err()
}

// VotesByVoter returns the voter's votes on the event's songs keyed by
// song id.
func (r *VoteRepo) VotesByVoter(ctx context.Context, eventID uint64, voterKey string) (map[uint64]model.Vote, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT v.id, v.song_id, v.user_id, v.voter_key, v.kind, v.created_at, v.updated_at
         FROM votes v
         JOIN songs s ON s.id = v.song_id
         WHERE s.event_id = ? AND v.voter_key = ?`, eventID, voterKey)
    if err != nil {
        return nil, fmt.Errorf("list voter votes: %w", err)
    }
    defer rows.Close()
    out := make(map[uint64]model.Vote)
    for rows.Next() {
        v, err := scanVote(rows)
        if err != nil {
            return nil, err
        }
        out[v.SongID] = *v
    }
    return out, rows.Err()
}
