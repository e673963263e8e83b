package model

import (
    "strings"
    "time"
)

// VoteKind is the direction of a vote.
type VoteKind string

const (
    VoteUp   VoteKind = "up"
    VoteDown VoteKind = "down"
)

// ParseVoteKind normalises s and reports whether it is a known kind.
func ParseVoteKind(s string) (VoteKind, bool) {
    switch VoteKind(strings.ToLower(strings.TrimSpace(s))) {
    case VoteUp:
        return VoteUp, true
    case VoteDown:
        return VoteDown, true
    }
    return "", false
}

// Vote is one identity's opinion on one song.  (SongID, VoterKey) is
// unique: changing a vote updates the row in place.
//
// Fields:
//  ID        – primary key identifier.
//  SongID    – song voted on.
//  UserID    – authenticated voter (nil for anonymous voters).
//  VoterKey  – stable identity string, "user:<id>" or "anon:<uuid>".
//  Kind      – up or down.
//  CreatedAt – first vote time.
//  UpdatedAt – last change time.
type Vote struct {
    ID        uint64    `json:"id"`         // votes.id
    SongID    uint64    `json:"song_id"`    // votes.song_id
    UserID    *uint64   `json:"user_id"`    // votes.user_id (nullable)
    VoterKey  string    `json:"-"`          // votes.voter_key
    Kind      VoteKind  `json:"kind"`       // votes.kind
    CreatedAt time.Time `json:"created_at"` // votes.created_at
    UpdatedAt time.Time `json:"updated_at"` // votes.updated_at
}

// Tally is the derived vote count of a song.
type Tally struct {
    Up   int `json:"up_count"`
    Down int `json:"down_count"`
}

// Score is up minus down.
func (t Tally) Score() int { return t.Up - t.Down }

// Add counts one vote of kind k.
func (t *Tally) Add(k VoteKind) {
    switch k {
    case VoteUp:
        t.Up++
    case VoteDown:
        t.Down++
    }
}
