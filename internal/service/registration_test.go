package service

import (
	"context"
	"sync"
	"testing"

	"github.com/IstFranco/utn-events/internal/apperr"
	"github.com/IstFranco/utn-events/internal/model"
	"github.com/IstFranco/utn-events/internal/queue"
	"github.com/IstFranco/utn-events/internal/store"
	"github.com/IstFranco/utn-events/internal/store/memstore"
)

func TestRegisterConcurrentNeverExceedsCapacity(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, EventInput{CapacityGeneral: 5, CapacityVIP: 2})

	const attempts = 40
	users := make([]uint64, attempts)
	for i := range users {
		users[i] = f.user(nil)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for _, uid := range users {
		wg.Add(1)
		go func(uid uint64) {
			defer wg.Done()
			_, err := f.reg.Register(context.Background(), ev.ID, uid, "general")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.CodeOf(err) == apperr.CodeNoCapacity:
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uid)
	}
	wg.Wait()

	if ok != 5 || full != attempts-5 {
		t.Fatalf("ok=%d full=%d, want 5 and %d", ok, full, attempts-5)
	}
	counts, _ := f.st.CountActiveByTier(context.Background(), ev.ID)
	if counts.General != 5 || counts.VIP != 0 {
		t.Fatalf("active counts = %+v", counts)
	}
}

func TestRegisterTwiceIsAlreadyRegistered(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, EventInput{CapacityGeneral: 10})
	uid := f.user(nil)
	ctx := context.Background()

	res, err := f.reg.Register(ctx, ev.ID, uid, "general")
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	if res.Outcome != OutcomeCreated {
		t.Errorf("outcome = %s, want created", res.Outcome)
	}
	_, err = f.reg.Register(ctx, ev.ID, uid, "vip")
	assertCode(t, err, apperr.CodeAlreadyRegistered)

	if rows := f.st.RegistrationRows(ev.ID); len(rows) != 1 || !rows[0].IsActive() {
		t.Fatalf("rows = %+v, want one active", rows)
	}
}

func TestRegisterAfterUnregisterReactivatesSameRow(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, EventInput{CapacityGeneral: 10, CapacityVIP: 10})
	uid := f.user(nil)
	ctx := context.Background()

	first, err := f.reg.Register(ctx, ev.ID, uid, "general")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.reg.Unregister(ctx, ev.ID, uid); err != nil {
		t.Fatal(err)
	}
	second, err := f.reg.Register(ctx, ev.ID, uid, "vip")
	if err != nil {
		t.Fatal(err)
	}

	if second.Outcome != OutcomeReactivated {
		t.Errorf("outcome = %s, want reactivated", second.Outcome)
	}
	rows := f.st.RegistrationRows(ev.ID)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.ID != first.Registration.ID || !row.IsActive() || row.Tier != model.TierVIP {
		t.Fatalf("row = %+v", row)
	}
	if !row.RegisteredAt.After(first.Registration.RegisteredAt) {
		t.Errorf("timestamp not refreshed: %s <= %s", row.RegisteredAt, first.Registration.RegisteredAt)
	}
	if second.RemainingVIP != 9 || second.RemainingGeneral != 10 {
		t.Errorf("remaining = %d/%d", second.RemainingGeneral, second.RemainingVIP)
	}

	want := []queue.Type{queue.RegistrationCreated, queue.RegistrationCancelled, queue.RegistrationReactivated}
	got := f.pub.published()
	if len(got) != len(want) {
		t.Fatalf("published %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("published %v, want %v", got, want)
		}
	}
}

func TestRegisterAgeGate(t *testing.T) {
	tests := []struct {
		name     string
		age      *uint32
		wantCode string
	}{
		{name: "too young", age: u32(16), wantCode: apperr.CodeAgeRestricted},
		{name: "unknown age", age: nil, wantCode: apperr.CodeAgeUnknown},
		{name: "old enough", age: u32(21)},
		{name: "exactly minimum", age: u32(18)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ev := f.event(t, EventInput{CapacityGeneral: 5, MinimumAge: i64(18)})
			uid := f.user(tt.age)

			_, err := f.reg.Register(context.Background(), ev.ID, uid, "general")
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			ae := assertCode(t, err, tt.wantCode)
			if tt.wantCode == apperr.CodeAgeRestricted {
				if ae.Details["required_age"] != uint32(18) || ae.Details["actual_age"] != uint32(16) {
					t.Errorf("details = %v", ae.Details)
				}
			}
		})
	}
}

func TestRegisterAgeUnknownResolvedByProfile(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, EventInput{CapacityGeneral: 5, MinimumAge: i64(18)})
	uid := f.user(nil)
	ctx := context.Background()

	_, err := f.reg.Register(ctx, ev.ID, uid, "general")
	assertCode(t, err, apperr.CodeAgeUnknown)
	if _, err := f.profile.UpdateAge(ctx, uid, 30); err != nil {
		t.Fatal(err)
	}
	if _, err := f.reg.Register(ctx, ev.ID, uid, "general"); err != nil {
		t.Fatalf("register after profile update: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, EventInput{CapacityGeneral: 5})
	gone := f.event(t, EventInput{CapacityGeneral: 5})
	if err := f.events.DeactivateEvent(context.Background(), companyID, gone.ID); err != nil {
		t.Fatal(err)
	}
	uid := f.user(nil)

	tests := []struct {
		name    string
		eventID uint64
		tier    string
		code    string
	}{
		{"bad tier", ev.ID, "balcony", apperr.CodeInvalidTier},
		{"missing event", 9999, "general", apperr.CodeEventNotFound},
		{"inactive event", gone.ID, "general", apperr.CodeEventNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reg.Register(context.Background(), tt.eventID, uid, tt.tier)
			assertCode(t, err, tt.code)
		})
	}
}

func TestRegisterTiersAreIndependent(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, EventInput{CapacityGeneral: 2, CapacityVIP: 1})
	ctx := context.Background()

	if _, err := f.reg.Register(ctx, ev.ID, f.user(nil), "vip"); err != nil {
		t.Fatal(err)
	}
	_, err := f.reg.Register(ctx, ev.ID, f.user(nil), "VIP")
	ae := assertCode(t, err, apperr.CodeNoCapacity)
	if ae.Details["remaining"] != 0 || ae.Details["tier"] != "vip" {
		t.Errorf("details = %v", ae.Details)
	}

	res, err := f.reg.Register(ctx, ev.ID, f.user(nil), "general")
	if err != nil {
		t.Fatalf("general should still have room: %v", err)
	}
	if res.RemainingGeneral != 1 || res.RemainingVIP != 0 {
		t.Errorf("remaining = %d/%d, want 1/0", res.RemainingGeneral, res.RemainingVIP)
	}
}

func TestRegisterZeroCapacityTier(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, EventInput{CapacityGeneral: 3})
	_, err := f.reg.Register(context.Background(), ev.ID, f.user(nil), "vip")
	assertCode(t, err, apperr.CodeNoCapacity)
}

func TestUnregisterTwiceFails(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, EventInput{CapacityGeneral: 3})
	uid := f.user(nil)
	ctx := context.Background()

	if _, err := f.reg.Register(ctx, ev.ID, uid, "general"); err != nil {
		t.Fatal(err)
	}
	res, err := f.reg.Unregister(ctx, ev.ID, uid)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.RemainingGeneral != 3 {
		t.Errorf("result = %+v", res)
	}
	_, err = f.reg.Unregister(ctx, ev.ID, uid)
	assertCode(t, err, apperr.CodeRegistrationNotFound)

	_, err = f.reg.Unregister(ctx, 9999, uid)
	assertCode(t, err, apperr.CodeEventNotFound)
}

func TestConcurrentUnregisterOnlyOneSucceeds(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, EventInput{CapacityGeneral: 3})
	uid := f.user(nil)
	ctx := context.Background()
	if _, err := f.reg.Register(ctx, ev.ID, uid, "general"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reg.Unregister(ctx, ev.ID, uid)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	okCount := 0
	for err := range errs {
		if err == nil {
			okCount++
		} else if apperr.CodeOf(err) != apperr.CodeRegistrationNotFound {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if okCount != 1 {
		t.Fatalf("%d unregisters succeeded, want 1", okCount)
	}
}

func TestGetOccupancyStats(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, EventInput{CapacityGeneral: 3, CapacityVIP: 0})
	ctx := context.Background()
	if _, err := f.reg.Register(ctx, ev.ID, f.user(nil), "general"); err != nil {
		t.Fatal(err)
	}

	stats, err := f.reg.GetOccupancyStats(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.General != (TierStats{Capacity: 3, Registered: 1, Remaining: 2, OccupancyPct: 33.3}) {
		t.Errorf("general = %+v", stats.General)
	}
	if stats.VIP != (TierStats{}) {
		t.Errorf("vip with zero capacity = %+v, want all zero", stats.VIP)
	}

	_, err = f.reg.GetOccupancyStats(ctx, 9999)
	assertCode(t, err, apperr.CodeEventNotFound)
}

func TestTierStatsRounding(t *testing.T) {
	tests := []struct {
		capacity, registered int
		want                 float64
	}{
		{3, 2, 66.7},
		{8, 1, 12.5},
		{1, 1, 100},
		{0, 0, 0},
		{2, 3, 150},
	}
	for _, tt := range tests {
		if got := tierStats(tt.capacity, tt.registered).OccupancyPct; got != tt.want {
			t.Errorf("tierStats(%d, %d) pct = %v, want %v", tt.capacity, tt.registered, got, tt.want)
		}
	}
}

func TestListRegisteredEvents(t *testing.T) {
	f := newFixture(t)
	a := f.event(t, EventInput{Name: "A", CapacityGeneral: 5})
	b := f.event(t, EventInput{Name: "B", CapacityGeneral: 5})
	c := f.event(t, EventInput{Name: "C", CapacityGeneral: 5})
	uid := f.user(nil)
	other := f.user(nil)
	ctx := context.Background()

	for _, id := range []uint64{a.ID, b.ID, c.ID} {
		if _, err := f.reg.Register(ctx, id, uid, "general"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.reg.Register(ctx, a.ID, other, "general"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.reg.Unregister(ctx, b.ID, uid); err != nil {
		t.Fatal(err)
	}
	if err := f.events.DeactivateEvent(ctx, companyID, c.ID); err != nil {
		t.Fatal(err)
	}

	got, err := f.reg.ListRegisteredEvents(ctx, uid)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != a.ID || got[0].RegisteredCount != 2 {
		t.Fatalf("got %+v, want only event A with 2 registrations", got)
	}
}

func TestPublishFailureDoesNotFailRegistration(t *testing.T) {
	f := newFixture(t)
	f.pub.err = context.DeadlineExceeded
	ev := f.event(t, EventInput{CapacityGeneral: 1})
	if _, err := f.reg.Register(context.Background(), ev.ID, f.user(nil), "general"); err != nil {
		t.Fatalf("register: %v", err)
	}
}

// blindStore hides existing registrations from the duplicate check so
// the insert hits the unique key.
type blindStore struct {
	*memstore.Store
}

type blindTx struct {
	store.RegistrationTx
}

func (blindTx) FindRegistration(context.Context, uint64) (*model.Registration, error) {
	return nil, store.ErrNotFound
}

func (b blindStore) WithEventLock(ctx context.Context, eventID uint64, fn func(store.RegistrationTx) error) error {
	return b.Store.WithEventLock(ctx, eventID, func(tx store.RegistrationTx) error {
		return fn(blindTx{tx})
	})
}

func TestRegisterUniqueViolationIsAlreadyRegistered(t *testing.T) {
	f := newFixture(t)
	d := f.deps
	d.Registrations = blindStore{f.st}
	svc := NewRegistrationService(d)
	ev := f.event(t, EventInput{CapacityGeneral: 5})
	uid := f.user(nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, ev.ID, uid, "general"); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Register(ctx, ev.ID, uid, "general")
	assertCode(t, err, apperr.CodeAlreadyRegistered)
}

func TestRegisterUnknownUser(t *testing.T) {
	f := newFixture(t)
	open := f.event(t, EventInput{CapacityGeneral: 3})
	adults := f.event(t, EventInput{CapacityGeneral: 3, MinimumAge: i64(18)})

	for _, ev := range []*model.Event{open, adults} {
		_, err := f.reg.Register(context.Background(), ev.ID, 4242, "general")
		assertCode(t, err, apperr.CodeUserNotFound)
		if rows := f.st.RegistrationRows(ev.ID); len(rows) != 0 {
			t.Errorf("event %d rows = %+v", ev.ID, rows)
		}
	}
}
