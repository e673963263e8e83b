package service

import (
	"context"
	"errors"
	"strings"

	"github.com/IstFranco/utn-events/internal/apperr"
	"github.com/IstFranco/utn-events/internal/model"
	"github.com/IstFranco/utn-events/internal/store"
)

// maxCapacity bounds a single tier.
const maxCapacity = 1_000_000

// EventInput describes a new event.  Capacities and minimum age are
// signed so that negative input is reported instead of wrapped.
type EventInput struct {
	Name            string
	Genre           string
	CapacityGeneral int64
	CapacityVIP     int64
	MinimumAge      *int64
}

// EventPatch lists the fields to change; nil fields are kept.
// ClearMinimumAge removes an age restriction.
type EventPatch struct {
	Name            *string
	Genre           *string
	CapacityGeneral *int64
	CapacityVIP     *int64
	MinimumAge      *int64
	ClearMinimumAge bool
}

// EventService manages events on behalf of the organising company and
// serves the public listings.
type EventService struct {
	base
	events store.EventStore
}

// NewEventService constructs an EventService from d.
func NewEventService(d Deps) *EventService {
	return &EventService{base: newBase(d), events: d.Events}
}

func validCapacity(field string, n int64) (uint32, error) {
	if n < 0 || n > maxCapacity {
		return 0, apperr.Validation(apperr.CodeInvalidInput, field+" must be between 0 and 1000000")
	}
	return uint32(n), nil
}

func validAge(n int64) (*uint32, error) {
	if n < 0 || n > 150 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "minimum_age must be between 0 and 150")
	}
	v := uint32(n)
	return &v, nil
}

// CreateEvent creates an active event owned by companyID.
func (s *EventService) CreateEvent(ctx context.Context, companyID uint64, in EventInput) (*model.Event, error) {
	ev := model.Event{CompanyID: companyID, Name: strings.TrimSpace(in.Name), Genre: strings.TrimSpace(in.Genre)}
	if ev.Name == "" || ev.Genre == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "name and genre are required")
	}
	var err error
	if ev.CapacityGeneral, err = validCapacity("capacity_general", in.CapacityGeneral); err != nil {
		return nil, err
	}
	if ev.CapacityVIP, err = validCapacity("capacity_vip", in.CapacityVIP); err != nil {
		return nil, err
	}
	if in.MinimumAge != nil {
		if ev.MinimumAge, err = validAge(*in.MinimumAge); err != nil {
			return nil, err
		}
	}
	if err := s.events.CreateEvent(ctx, &ev); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Forbidden("company is not registered")
		}
		return nil, s.internal("create event", err)
	}
	s.log.Info("event created", "event_id", ev.ID, "company_id", companyID)
	return &ev, nil
}

// owned loads an event and checks that companyID organises it.
func (s *EventService) owned(ctx context.Context, companyID, eventID uint64) (*model.Event, error) {
	ev, err := s.events.GetEvent(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.EventNotFound()
	}
	if err != nil {
		return nil, s.internal("load event", err)
	}
	if ev.CompanyID != companyID {
		return nil, apperr.Forbidden("event belongs to another company")
	}
	return ev, nil
}

// UpdateEvent applies patch to an event owned by companyID.  Lowering a
// capacity below the current registrations is allowed; it only blocks
// new registrations.
func (s *EventService) UpdateEvent(ctx context.Context, companyID, eventID uint64, patch EventPatch) (*model.Event, error) {
	ev, err := s.owned(ctx, companyID, eventID)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		if ev.Name = strings.TrimSpace(*patch.Name); ev.Name == "" {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "name must not be empty")
		}
	}
	if patch.Genre != nil {
		if ev.Genre = strings.TrimSpace(*patch.Genre); ev.Genre == "" {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "genre must not be empty")
		}
	}
	if patch.CapacityGeneral != nil {
		if ev.CapacityGeneral, err = validCapacity("capacity_general", *patch.CapacityGeneral); err != nil {
			return nil, err
		}
	}
	if patch.CapacityVIP != nil {
		if ev.CapacityVIP, err = validCapacity("capacity_vip", *patch.CapacityVIP); err != nil {
			return nil, err
		}
	}
	switch {
	case patch.ClearMinimumAge:
		ev.MinimumAge = nil
	case patch.MinimumAge != nil:
		if ev.MinimumAge, err = validAge(*patch.MinimumAge); err != nil {
			return nil, err
		}
	}
	if err := s.events.UpdateEvent(ctx, ev); err != nil {
		return nil, s.internal("update event", err)
	}
	return ev, nil
}

// DeactivateEvent hides an event owned by companyID.  Its registrations,
// songs and votes are kept.
func (s *EventService) DeactivateEvent(ctx context.Context, companyID, eventID uint64) error {
	if _, err := s.owned(ctx, companyID, eventID); err != nil {
		return err
	}
	if err := s.events.DeactivateEvent(ctx, eventID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.EventNotFound()
		}
		return s.internal("deactivate event", err)
	}
	s.log.Info("event deactivated", "event_id", eventID, "company_id", companyID)
	return nil
}

// ListEvents returns active events, optionally of one genre.
func (s *EventService) ListEvents(ctx context.Context, genre string) ([]model.EventSummary, error) {
	out, err := s.events.ListActiveEvents(ctx, strings.TrimSpace(genre))
	if err != nil {
		return nil, s.internal("list events", err)
	}
	return out, nil
}

// GetEvent returns an active event with its registered count.
func (s *EventService) GetEvent(ctx context.Context, eventID uint64) (*model.EventSummary, error) {
	ev, err := s.events.GetEventSummary(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !ev.IsActive) {
		return nil, apperr.EventNotFound()
	}
	if err != nil {
		return nil, s.internal("load event", err)
	}
	return ev, nil
}
