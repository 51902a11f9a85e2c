package core

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/guestlist/internal/schema"
)

func TestSnapshot_CachedAfterFirstRead(t *testing.T) {
	svc, srv := newTestService(t, Options{})
	srv.Seed("evt", schema.GuestRecord{Name: "Ann", Status: schema.StatusInvited})
	ctx := context.Background()

	first, err := svc.Snapshot(ctx, "evt")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Snapshot(ctx, "evt")
	if err != nil {
		t.Fatal(err)
	}

	if n := srv.CallCount(http.MethodGet); n != 1 {
		t.Errorf("list calls = %d, want 1", n)
	}
	if first.Version != second.Version || first.Len() != 1 {
		t.Errorf("snapshots differ: %+v vs %+v", first, second)
	}
}

func TestRefresh_ReplacesSnapshot(t *testing.T) {
	svc, srv := newTestService(t, Options{})
	ctx := context.Background()

	before, err := svc.Refresh(ctx, "evt")
	if err != nil {
		t.Fatal(err)
	}
	if before.Len() != 0 {
		t.Errorf("initial snapshot has %d guests", before.Len())
	}

	srv.Seed("evt", schema.GuestRecord{Name: "Ann", Status: schema.StatusInvited})

	after, err := svc.Refresh(ctx, "evt")
	if err != nil {
		t.Fatal(err)
	}
	if after.Version <= before.Version {
		t.Errorf("version did not advance: %d -> %d", before.Version, after.Version)
	}
	if after.Len() != 1 {
		t.Errorf("refreshed snapshot has %d guests, want 1", after.Len())
	}
	// The earlier snapshot is untouched
	if before.Len() != 0 {
		t.Error("old snapshot was modified")
	}
}

func TestRefresh_CoalescesConcurrentCalls(t *testing.T) {
	svc, srv := newTestService(t, Options{})

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	srv.OnList(func(string) {
		once.Do(func() { close(entered) })
		<-unblock
	})

	const callers = 5
	var wg sync.WaitGroup
	versions := make([]uint64, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		snap, err := svc.Refresh(context.Background(), "evt")
		if err != nil {
			t.Errorf("Refresh failed: %v", err)
		}
		versions[0] = snap.Version
	}()
	<-entered

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := svc.Refresh(context.Background(), "evt")
			if err != nil {
				t.Errorf("Refresh failed: %v", err)
			}
			versions[i] = snap.Version
		}(i)
	}

	// Let the followers join the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(unblock)
	wg.Wait()

	if n := srv.CallCount(http.MethodGet); n != 1 {
		t.Errorf("list calls = %d, want 1", n)
	}
	for i, v := range versions {
		if v != versions[0] {
			t.Errorf("caller %d got version %d, want %d", i, v, versions[0])
		}
	}
}

func TestRefresh_CallerCancelDoesNotFailFollowers(t *testing.T) {
	svc, srv := newTestService(t, Options{})
	srv.Seed("evt", schema.GuestRecord{Name: "Ann", Status: schema.StatusInvited})

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	srv.OnList(func(string) {
		once.Do(func() { close(entered) })
		<-unblock
	})

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.Refresh(leaderCtx, "evt")
		leaderErr <- err
	}()
	<-entered

	type result struct {
		snap Snapshot
		err  error
	}
	follower := make(chan result, 1)
	go func() {
		snap, err := svc.Refresh(context.Background(), "evt")
		follower <- result{snap, err}
	}()

	// Let the follower join, then drop the caller that started the call
	time.Sleep(50 * time.Millisecond)
	cancelLeader()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader error = %v, want context.Canceled", err)
	}

	close(unblock)
	res := <-follower
	if res.err != nil {
		t.Fatalf("follower Refresh failed: %v", res.err)
	}
	if res.snap.Len() != 1 {
		t.Errorf("follower snapshot has %d guests, want 1", res.snap.Len())
	}
	if n := srv.CallCount(http.MethodGet); n != 1 {
		t.Errorf("list calls = %d, want 1", n)
	}
}

func TestRefresh_RegistryError(t *testing.T) {
	svc, srv := newTestService(t, Options{})
	srv.RejectOp("list", http.StatusInternalServerError, "registry down")

	_, err := svc.Refresh(context.Background(), "evt")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := MapError(err).Message; got != "registry down" {
		t.Errorf("user message = %q, want registry text", got)
	}
}

func TestSnapshot_RefetchedAfterFailedRefresh(t *testing.T) {
	svc, srv := newTestService(t, Options{})
	ctx := context.Background()

	if _, err := svc.Snapshot(ctx, "evt"); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	srv.RejectOp("list", http.StatusServiceUnavailable, "registry down")
	if _, _, err := svc.Create(ctx, "evt", schema.GuestInput{Name: "Jane"}); err == nil {
		t.Fatal("expected refresh error after create")
	}
	srv.AllowOp("list")

	snap, err := svc.Snapshot(ctx, "evt")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Len() != 1 || snap.Guests[0].Name != "Jane" {
		t.Errorf("snapshot = %+v, want the created guest after refetch", snap.Guests)
	}
}

func TestCreate_NormalizesAndRefreshes(t *testing.T) {
	svc, srv := newTestService(t, Options{})

	rec, snap, err := svc.Create(context.Background(), "evt", schema.GuestInput{
		Name:   "  Jane  ",
		Email:  " jane@x.com ",
		Status: "checked in",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.Name != "Jane" || rec.Email != "jane@x.com" || rec.Status != schema.StatusCheckedIn {
		t.Errorf("record = %+v", rec)
	}
	if _, ok := snap.Find(rec.ID); !ok {
		t.Error("snapshot should contain the new guest")
	}
	if n := srv.CallCount(http.MethodGet); n != 1 {
		t.Errorf("list calls = %d, want 1 refresh", n)
	}
}

func TestCreate_EmptyNameRejected(t *testing.T) {
	svc, srv := newTestService(t, Options{})

	for _, name := range []string{"", "   ", "\t"} {
		_, _, err := svc.Create(context.Background(), "evt", schema.GuestInput{Name: name, Email: "x@y.z"})
		if !errors.Is(err, ErrInvalidGuest) {
			t.Errorf("Create(%q) error = %v, want ErrInvalidGuest", name, err)
		}
	}
	if calls := srv.Calls(); len(calls) != 0 {
		t.Errorf("made %d registry calls, want 0", len(calls))
	}
}

func TestUpdate_FullReplace(t *testing.T) {
	svc, srv := newTestService(t, Options{})
	srv.Seed("evt", schema.GuestRecord{ID: "g-ann", Name: "Ann", Email: "ann@x.com", Notes: "old", Status: schema.StatusInvited})

	rec, snap, err := svc.Update(context.Background(), "evt", "g-ann", schema.GuestInput{Name: "Ann B", Status: "cancelled"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if rec.Email != "" || rec.Notes != "" || rec.Status != schema.StatusCancelled {
		t.Errorf("record = %+v, want cleared optional fields", rec)
	}
	got, ok := snap.Find("g-ann")
	if !ok || got.Name != "Ann B" {
		t.Errorf("snapshot guest = %+v", got)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	_, _, err := svc.Update(context.Background(), "evt", "missing", schema.GuestInput{Name: "X"})
	if !errors.Is(err, ErrGuestNotFound) {
		t.Errorf("error = %v, want ErrGuestNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	svc, srv := newTestService(t, Options{})
	srv.Seed("evt",
		schema.GuestRecord{ID: "a", Name: "Ann", Status: schema.StatusInvited},
		schema.GuestRecord{ID: "b", Name: "Bob", Status: schema.StatusInvited},
	)
	ctx := context.Background()

	if _, err := svc.Snapshot(ctx, "evt"); err != nil {
		t.Fatal(err)
	}

	snap, err := svc.Delete(ctx, "evt", "a")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if snap.Len() != 1 || snap.Guests[0].ID != "b" {
		t.Errorf("snapshot = %+v, want only Bob", snap.Guests)
	}

	if _, err := svc.Delete(ctx, "evt", "a"); !errors.Is(err, ErrGuestNotFound) {
		t.Errorf("second delete error = %v, want ErrGuestNotFound", err)
	}
}

func TestMutation_ReleasesLockOnError(t *testing.T) {
	svc, srv := newTestService(t, Options{})
	srv.RejectOp("create", http.StatusBadRequest, "bad guest")
	ctx := context.Background()

	if _, _, err := svc.Create(ctx, "evt", schema.GuestInput{Name: "Ann"}); err == nil {
		t.Fatal("expected error")
	}
	// The lock must be free again
	if _, err := svc.Refresh(ctx, "evt"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Create(ctx, "evt", schema.GuestInput{Name: "Ann"}); errors.Is(err, ErrEventBusy) {
		t.Error("lock was not released after a failed create")
	}
}

func TestWaitForDrain(t *testing.T) {
	svc, srv := newTestService(t, Options{})

	t.Run("returns immediately when idle", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if err := svc.WaitForDrain(ctx); err != nil {
			t.Errorf("WaitForDrain = %v, want nil", err)
		}
	})

	t.Run("waits for running import", func(t *testing.T) {
		entered := make(chan struct{})
		unblock := make(chan struct{})
		var once sync.Once
		srv.OnCreate(func(string, schema.GuestInput) {
			once.Do(func() { close(entered) })
			<-unblock
		})

		go func() {
			_, _ = svc.ImportText(context.Background(), "evt", "", "Ann")
		}()
		<-entered

		short, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()
		if err := svc.WaitForDrain(short); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("WaitForDrain during import = %v, want deadline exceeded", err)
		}

		close(unblock)

		long, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel2()
		if err := svc.WaitForDrain(long); err != nil {
			t.Errorf("WaitForDrain after import = %v, want nil", err)
		}
	})
}
