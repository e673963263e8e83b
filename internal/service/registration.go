package service

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/IstFranco/utn-events/internal/apperr"
	"github.com/IstFranco/utn-events/internal/model"
	"github.com/IstFranco/utn-events/internal/queue"
	"github.com/IstFranco/utn-events/internal/store"
)

// Outcome tells a new registration apart from a reactivated one.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeReactivated Outcome = "reactivated"
)

// RegisterResult is returned by Register.  Remaining counts are read
// after the commit so the caller can refresh availability without a
// second round trip.
type RegisterResult struct {
	Registration     model.Registration `json:"registration"`
	Outcome          Outcome            `json:"outcome"`
	RemainingGeneral int                `json:"remaining_general"`
	RemainingVIP     int                `json:"remaining_vip"`
}

// UnregisterResult is returned by Unregister.
type UnregisterResult struct {
	OK               bool `json:"ok"`
	RemainingGeneral int  `json:"remaining_general"`
	RemainingVIP     int  `json:"remaining_vip"`
}

// TierStats is the occupancy of one tier.
type TierStats struct {
	Capacity     int     `json:"capacity"`
	Registered   int     `json:"registered"`
	Remaining    int     `json:"remaining"`
	OccupancyPct float64 `json:"occupancy_pct"`
}

// OccupancyStats reports both tiers of an event.
type OccupancyStats struct {
	EventID uint64    `json:"event_id"`
	General TierStats `json:"general"`
	VIP     TierStats `json:"vip"`
}

// RegistrationService gates and records ticket registrations.
type RegistrationService struct {
	base
	events        store.EventStore
	registrations store.RegistrationStore
}

// NewRegistrationService constructs a RegistrationService from d.
func NewRegistrationService(d Deps) *RegistrationService {
	return &RegistrationService{
		base:          newBase(d),
		events:        d.Events,
		registrations: d.Registrations,
	}
}

// Register claims one slot of tier for the user.  The eligibility
// checks and the write run while the event row is locked, so two
// requests racing for the last slot cannot both succeed.
func (s *RegistrationService) Register(ctx context.Context, eventID, userID uint64, tierName string) (*RegisterResult, error) {
	tier, ok := model.ParseTier(tierName)
	if !ok {
		return nil, apperr.Validation(apperr.CodeInvalidTier, "tier must be one of: general, vip")
	}

	var (
		reg     model.Registration
		outcome Outcome
		event   model.Event
	)
	err := s.registrations.WithEventLock(ctx, eventID, func(tx store.RegistrationTx) error {
		ev := tx.Event()
		if !ev.IsActive {
			return apperr.EventNotFound()
		}
		event = *ev

		if ev.MinimumAge != nil {
			// Read through tx: the pool may be exhausted by callers
			// queued on this event's lock.
			user, err := tx.User(ctx, userID)
			if errors.Is(err, store.ErrNotFound) {
				return apperr.UserNotFound()
			}
			if err != nil {
				return s.internal("load user", err)
			}
			if user.Age == nil {
				return apperr.AgeUnknown()
			}
			if *user.Age < *ev.MinimumAge {
				return apperr.AgeRestricted(*ev.MinimumAge, *user.Age)
			}
		}

		existing, err := tx.FindRegistration(ctx, userID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return s.internal("find registration", err)
		}
		if existing != nil && existing.IsActive() {
			return apperr.AlreadyRegistered()
		}

		count, err := tx.CountActive(ctx, tier)
		if err != nil {
			return s.internal("count registrations", err)
		}
		if capacity := ev.Capacity(tier); count >= capacity {
			return apperr.NoCapacity(string(tier), capacity-count)
		}

		now := s.now().UTC()
		if existing != nil {
			reg = *existing
			reg.Tier = tier
			reg.RegisteredAt = now
			flipped, err := tx.ReactivateRegistration(ctx, &reg)
			if err != nil {
				return s.internal("reactivate registration", err)
			}
			if !flipped {
				return apperr.AlreadyRegistered()
			}
			outcome = OutcomeReactivated
			return nil
		}

		reg = model.Registration{UserID: userID, EventID: ev.ID, Tier: tier, RegisteredAt: now}
		if err := tx.InsertRegistration(ctx, &reg); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				// Unique (user, event) caught a write that slipped past
				// the duplicate check.
				return apperr.AlreadyRegistered()
			}
			if errors.Is(err, store.ErrNotFound) {
				// the event row is locked, so the missing row is the user
				return apperr.UserNotFound()
			}
			return s.internal("insert registration", err)
		}
		outcome = OutcomeCreated
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.EventNotFound()
		}
		return nil, s.internal("register", err)
	}

	counts, err := s.registrations.CountActiveByTier(ctx, eventID)
	if err != nil {
		return nil, s.internal("count registrations", err)
	}
	res := &RegisterResult{
		Registration:     reg,
		Outcome:          outcome,
		RemainingGeneral: clampZero(event.Capacity(model.TierGeneral) - counts.General),
		RemainingVIP:     clampZero(event.Capacity(model.TierVIP) - counts.VIP),
	}

	evType := queue.RegistrationCreated
	if outcome == OutcomeReactivated {
		evType = queue.RegistrationReactivated
	}
	s.emit(ctx, evType, strconv.FormatUint(eventID, 10), queue.RegistrationEvent{
		RegistrationID:   reg.ID,
		EventID:          eventID,
		EventName:        event.Name,
		UserID:           userID,
		Tier:             string(reg.Tier),
		RemainingGeneral: res.RemainingGeneral,
		RemainingVIP:     res.RemainingVIP,
	})
	s.log.Info("registration committed",
		"event_id", eventID, "user_id", userID, "tier", reg.Tier, "outcome", outcome)
	return res, nil
}

// Unregister cancels the user's active registration.  Cancelling twice
// fails the second time with a not-found error.
func (s *RegistrationService) Unregister(ctx context.Context, eventID, userID uint64) (*UnregisterResult, error) {
	ev, err := s.events.GetEvent(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.EventNotFound()
	}
	if err != nil {
		return nil, s.internal("load event", err)
	}

	changed, err := s.registrations.CancelRegistration(ctx, eventID, userID)
	if err != nil {
		return nil, s.internal("cancel registration", err)
	}
	if !changed {
		return nil, apperr.RegistrationNotFound()
	}

	counts, err := s.registrations.CountActiveByTier(ctx, eventID)
	if err != nil {
		return nil, s.internal("count registrations", err)
	}
	res := &UnregisterResult{
		OK:               true,
		RemainingGeneral: clampZero(ev.Capacity(model.TierGeneral) - counts.General),
		RemainingVIP:     clampZero(ev.Capacity(model.TierVIP) - counts.VIP),
	}
	s.emit(ctx, queue.RegistrationCancelled, strconv.FormatUint(eventID, 10), queue.RegistrationEvent{
		EventID:          eventID,
		EventName:        ev.Name,
		UserID:           userID,
		RemainingGeneral: res.RemainingGeneral,
		RemainingVIP:     res.RemainingVIP,
	})
	s.log.Info("registration cancelled", "event_id", eventID, "user_id", userID)
	return res, nil
}

// ListRegisteredEvents returns the active events the user is registered
// for, each with its live registered count.
func (s *RegistrationService) ListRegisteredEvents(ctx context.Context, userID uint64) ([]model.EventSummary, error) {
	out, err := s.registrations.ListRegisteredEvents(ctx, userID)
	if err != nil {
		return nil, s.internal("list registered events", err)
	}
	return out, nil
}

// GetOccupancyStats derives per-tier occupancy from live counts.
func (s *RegistrationService) GetOccupancyStats(ctx context.Context, eventID uint64) (*OccupancyStats, error) {
	ev, err := s.events.GetEvent(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !ev.IsActive) {
		return nil, apperr.EventNotFound()
	}
	if err != nil {
		return nil, s.internal("load event", err)
	}
	counts, err := s.registrations.CountActiveByTier(ctx, eventID)
	if err != nil {
		return nil, s.internal("count registrations", err)
	}
	return &OccupancyStats{
		EventID: eventID,
		General: tierStats(ev.Capacity(model.TierGeneral), counts.General),
		VIP:     tierStats(ev.Capacity(model.TierVIP), counts.VIP),
	}, nil
}

func tierStats(capacity, registered int) TierStats {
	ts := TierStats{Capacity: capacity, Registered: registered, Remaining: clampZero(capacity - registered)}
	if capacity > 0 {
		ts.OccupancyPct = math.Round(float64(registered)/float64(capacity)*1000) / 10
	}
	return ts
}
