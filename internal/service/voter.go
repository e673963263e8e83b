package service

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/IstFranco/utn-events/internal/apperr"
)

// Voter identifies whoever casts a vote.  Authenticated users vote as
// themselves; anonymous clients supply a self-generated UUID that they
// must keep stable to change or remove their vote later.
type Voter struct {
	UserID *uint64
	anonID string
}

// UserVoter returns the voter for an authenticated user.
func UserVoter(userID uint64) Voter {
	id := userID
	return Voter{UserID: &id}
}

// AnonymousVoter validates a client-generated identity.
func AnonymousVoter(raw string) (Voter, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return Voter{}, apperr.Validation(apperr.CodeInvalidInput, "voter id must be a UUID")
	}
	return Voter{anonID: id.String()}, nil
}

// Anonymous reports whether the voter has no account.
func (v Voter) Anonymous() bool { return v.UserID == nil }

// Key is the identity stored with the vote; one vote per key per song.
func (v Voter) Key() string {
	if v.UserID != nil {
		return "user:" + strconv.FormatUint(*v.UserID, 10)
	}
	return "anon:" + v.anonID
}
