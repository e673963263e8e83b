package model

import (
    "strings"
    "time"
)

// Song is a track proposed for an event's playlist.  Within one event an
// external catalog id may appear at most once.
//
// Fields:
//  ID         – primary key identifier.
//  EventID    – owning event.
//  Title      – track title.
//  Artist     – performing artist.
//  ExternalID – catalog track id (nil for manually entered songs).
//  Genre      – genre tag, always equal to the owning event's genre.
//  CreatedAt  – creation timestamp.
type Song struct {
    ID         uint64    `json:"id"`          // songs.id
    EventID    uint64    `json:"event_id"`    // songs.event_id
    Title      string    `json:"title"`       // songs.title
    Artist     string    `json:"artist"`      // songs.artist
    ExternalID *string   `json:"external_id"` // songs.external_id (nullable)
    Genre      string    `json:"genre"`       // songs.genre
    CreatedAt  time.Time `json:"created_at"`  // songs.created_at
}

// SongFilter narrows a song listing.  Empty fields do not filter.
// Matching is a case-insensitive substring match.
type SongFilter struct {
    Genre string
    Query string
}

// Matches reports whether s passes the filter.
func (f SongFilter) Matches(s *Song) bool {
    if g := strings.TrimSpace(f.Genre); g != "" {
        if !strings.Contains(strings.ToLower(s.Genre), strings.ToLower(g)) {
            return false
        }
    }
    if q := strings.TrimSpace(f.Query); q != "" {
        if !strings.Contains(strings.ToLower(s.Title), strings.ToLower(q)) {
            return false
        }
    }
    return true
}

// SameGenre compares two genre tags ignoring case and surrounding space.
func SameGenre(a, b string) bool {
    return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
