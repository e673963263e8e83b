package service

import (
	"context"
	"errors"

	"github.com/IstFranco/utn-events/internal/apperr"
	"github.com/IstFranco/utn-events/internal/model"
	"github.com/IstFranco/utn-events/internal/store"
)

// ProfileService reads and updates the attendee profile fields this
// service owns.
type ProfileService struct {
	base
	users store.UserStore
}

func NewProfileService(d Deps) *ProfileService {
	return &ProfileService{base: newBase(d), users: d.Users}
}

func (s *ProfileService) GetProfile(ctx context.Context, userID uint64) (*model.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.UserNotFound()
	}
	if err != nil {
		return nil, s.internal("load user", err)
	}
	return u, nil
}

// UpdateAge records the user's age, which unblocks registration for
// age-restricted events.
func (s *ProfileService) UpdateAge(ctx context.Context, userID uint64, age int64) (*model.User, error) {
	if age < 0 || age > 150 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "age must be between 0 and 150")
	}
	if err := s.users.UpdateUserAge(ctx, userID, uint32(age)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.UserNotFound()
		}
		return nil, s.internal("update age", err)
	}
	return s.GetProfile(ctx, userID)
}
