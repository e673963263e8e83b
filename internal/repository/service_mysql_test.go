package repository_test

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IstFranco/utn-events/internal/apperr"
	"github.com/IstFranco/utn-events/internal/repository"
	"github.com/IstFranco/utn-events/internal/service"
)

func mysqlDeps(db *sql.DB) service.Deps {
	return service.Deps{
		Events:        repository.NewEventRepo(db),
		Users:         repository.NewUserRepo(db),
		Registrations: repository.NewRegistrationRepo(db),
		Songs:         repository.NewSongRepo(db),
		Votes:         repository.NewVoteRepo(db),
	}
}

// holdBegins makes the first n transactions wait for each other right
// after they begin, so that every pooled connection is inside a
// transaction before any of them takes the event lock.
func holdBegins(fdb *fakeDB, n int) {
	var begun atomic.Int32
	var all sync.WaitGroup
	all.Add(n)
	fdb.onBegin = func() {
		if begun.Add(1) <= int32(n) {
			all.Done()
			all.Wait()
		}
	}
}

func TestRegisterBurstFillsThePool(t *testing.T) {
	tests := []struct {
		name   string
		minAge any
	}{
		{"unrestricted", nil},
		{"age restricted", int64(18)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const conns = 4
			fdb := newFakeDB()
			ev := fdb.addEvent(10, 0, tt.minAge)
			users := make([]int64, conns)
			for i := range users {
				users[i] = fdb.addUser(int64(30))
			}
			holdBegins(fdb, conns)
			svc := service.NewRegistrationService(mysqlDeps(fdb.open(t, conns)))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			errs := make(chan error, conns)
			for _, uid := range users {
				uid := uid
				go func() {
					_, err := svc.Register(ctx, uint64(ev), uint64(uid), "general")
					errs <- err
				}()
			}
			for range users {
				if err := <-errs; err != nil {
					t.Errorf("register: %v", err)
				}
			}
			if rows := fdb.registrations(ev); len(rows) != conns {
				t.Fatalf("registrations = %d, want %d", len(rows), conns)
			}
		})
	}
}

func TestRegisterCapacityOverMySQL(t *testing.T) {
	const capacity, callers = 5, 16
	fdb := newFakeDB()
	ev := fdb.addEvent(capacity, 0, nil)
	svc := service.NewRegistrationService(mysqlDeps(fdb.open(t, 4)))

	var ok, full atomic.Int32
	var wg sync.WaitGroup
	for n := 0; n < callers; n++ {
		uid := fdb.addUser(nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(context.Background(), uint64(ev), uint64(uid), "general")
			switch apperr.CodeOf(err) {
			case "":
				ok.Add(1)
			case apperr.CodeNoCapacity:
				full.Add(1)
			default:
				t.Errorf("register: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != capacity || full.Load() != callers-capacity {
		t.Fatalf("ok=%d full=%d, want %d/%d", ok.Load(), full.Load(), capacity, callers-capacity)
	}
}

func TestRegistrationLifecycleOverMySQL(t *testing.T) {
	fdb := newFakeDB()
	ev := fdb.addEvent(2, 1, int64(18))
	adult, minor := uint64(fdb.addUser(int64(25))), uint64(fdb.addUser(int64(16)))
	svc := service.NewRegistrationService(mysqlDeps(fdb.open(t, 2)))
	ctx := context.Background()

	res, err := svc.Register(ctx, uint64(ev), adult, "general")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != service.OutcomeCreated || res.RemainingGeneral != 1 || res.RemainingVIP != 1 {
		t.Fatalf("first register = %+v", res)
	}
	_, err = svc.Register(ctx, uint64(ev), adult, "vip")
	if apperr.CodeOf(err) != apperr.CodeAlreadyRegistered {
		t.Fatalf("duplicate err = %v", err)
	}
	_, err = svc.Register(ctx, uint64(ev), minor, "general")
	if apperr.CodeOf(err) != apperr.CodeAgeRestricted {
		t.Fatalf("minor err = %v", err)
	}

	if _, err := svc.Unregister(ctx, uint64(ev), adult); err != nil {
		t.Fatal(err)
	}
	_, err = svc.Unregister(ctx, uint64(ev), adult)
	if apperr.CodeOf(err) != apperr.CodeRegistrationNotFound {
		t.Fatalf("second unregister err = %v", err)
	}

	again, err := svc.Register(ctx, uint64(ev), adult, "vip")
	if err != nil {
		t.Fatal(err)
	}
	if again.Outcome != service.OutcomeReactivated || again.Registration.ID != res.Registration.ID {
		t.Fatalf("re-register = %+v, want reactivation of row %d", again, res.Registration.ID)
	}
	if again.RemainingGeneral != 2 || again.RemainingVIP != 0 {
		t.Fatalf("remaining = %d/%d, want 2/0", again.RemainingGeneral, again.RemainingVIP)
	}
	if rows := fdb.registrations(ev); len(rows) != 1 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestUnknownIdentitiesOverMySQL(t *testing.T) {
	fdb := newFakeDB()
	db := fdb.open(t, 2)
	deps := mysqlDeps(db)
	ctx := context.Background()
	ev := fdb.addEvent(5, 0, nil)
	song := addSong(t, repository.NewSongRepo(db), ev, "A")

	_, err := service.NewRegistrationService(deps).Register(ctx, uint64(ev), 9999, "general")
	if apperr.CodeOf(err) != apperr.CodeUserNotFound {
		t.Errorf("register err = %v, want user_not_found", err)
	}
	_, err = service.NewVotingService(deps).CastVote(ctx, song.ID, service.UserVoter(9999), "up")
	if apperr.CodeOf(err) != apperr.CodeUserNotFound {
		t.Errorf("vote err = %v, want user_not_found", err)
	}
	_, err = service.NewEventService(deps).CreateEvent(ctx, 9999, service.EventInput{Name: "X", Genre: "rock"})
	if apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Errorf("create event err = %v, want forbidden", err)
	}
}
