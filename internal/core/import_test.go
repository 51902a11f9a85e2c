package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/guestlist/internal/csv"
	"github.com/JonMunkholm/guestlist/internal/registry"
	"github.com/JonMunkholm/guestlist/internal/schema"
)

// ============================================================================
// Successful imports
// ============================================================================

func TestImport_AllRowsCreated(t *testing.T) {
	svc, srv := newTestService(t, Options{})
	ctx := context.Background()

	text := "name,email,phone,notes,status\n" +
		"Jane Doe,jane@x.com,555-1,\"VIP, front row\",Checked In\n" +
		"John Smith,,,,\n" +
		"Ann,ann@x.com,,,canceled\n"

	result, err := svc.Import(ctx, "evt", "guests.csv", strings.NewReader(text))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if result.TotalRows != 3 || result.Submitted != 3 {
		t.Errorf("result = %+v, want 3 rows submitted", result)
	}
	if result.ImportID == "" {
		t.Error("ImportID should be set")
	}

	stored := srv.Guests("evt")
	if len(stored) != 3 {
		t.Fatalf("registry has %d guests, want 3", len(stored))
	}
	want := []struct {
		name   string
		notes  string
		status schema.Status
	}{
		{"Jane Doe", "VIP, front row", schema.StatusCheckedIn},
		{"John Smith", "", schema.StatusInvited},
		{"Ann", "", schema.StatusCancelled},
	}
	for i, w := range want {
		if stored[i].Name != w.name || stored[i].Notes != w.notes || stored[i].Status != w.status {
			t.Errorf("guest %d = %+v, want %+v", i, stored[i], w)
		}
	}

	if result.Snapshot.Len() != 3 {
		t.Errorf("snapshot has %d guests, want 3", result.Snapshot.Len())
	}

	st := svc.ImportStatus("evt")
	if st.State != ImportCompleted || st.Submitted != 3 {
		t.Errorf("status = %+v, want completed with 3 submitted", st)
	}
}

func TestImport_RowsSentInFileOrder(t *testing.T) {
	svc, srv := newTestService(t, Options{})

	_, err := svc.ImportText(context.Background(), "evt", "", "C\nA\nB")
	if err != nil {
		t.Fatalf("ImportText failed: %v", err)
	}

	var names []string
	for _, c := range srv.Calls() {
		if c.Method == http.MethodPost {
			names = append(names, c.Input.Name)
		}
	}
	if got := strings.Join(names, ","); got != "C,A,B" {
		t.Errorf("create order = %s, want C,A,B", got)
	}
}

func TestImport_DroppedRowsCounted(t *testing.T) {
	svc, srv := newTestService(t, Options{})

	result, err := svc.ImportText(context.Background(), "evt", "", "   \n,,,,\nJane,,,,")
	if err != nil {
		t.Fatalf("ImportText failed: %v", err)
	}
	if result.Submitted != 1 || result.Dropped != 1 {
		t.Errorf("result = %+v, want 1 submitted and 1 dropped", result)
	}
	if got := srv.Guests("evt"); len(got) != 1 || got[0].Name != "Jane" {
		t.Errorf("registry = %+v, want only Jane", got)
	}
}

// ============================================================================
// Empty input
// ============================================================================

func TestImport_EmptyFileMakesNoCalls(t *testing.T) {
	inputs := map[string]string{
		"empty":         "",
		"blank lines":   "\n  \r\n\t\n",
		"header only":   "name,email,phone,notes,status\n",
		"no names":      ",a@x.com\n ,b@x.com",
		"header, blank": "Name\n\"\"\n",
	}

	for name, text := range inputs {
		t.Run(name, func(t *testing.T) {
			svc, srv := newTestService(t, Options{})

			_, err := svc.ImportText(context.Background(), "evt", "", text)
			if !errors.Is(err, ErrNoRows) {
				t.Fatalf("error = %v, want ErrNoRows", err)
			}
			if err.Error() != "no rows found" {
				t.Errorf("message = %q, want %q", err.Error(), "no rows found")
			}
			if calls := srv.Calls(); len(calls) != 0 {
				t.Errorf("made %d registry calls, want 0", len(calls))
			}
			if st := svc.ImportStatus("evt"); st.State != ImportIdle {
				t.Errorf("state = %s, want idle", st.State)
			}
		})
	}
}

// ============================================================================
// Fail-fast
// ============================================================================

func TestImport_SecondRowConflict(t *testing.T) {
	svc, srv := newTestService(t, Options{})
	srv.RejectCreate("Bob", http.StatusConflict, "guest Bob already exists")

	result, err := svc.ImportText(context.Background(), "evt", "guests.csv", "Ann\nBob\nCid")

	var ie *ImportError
	if !errors.As(err, &ie) {
		t.Fatalf("error = %v, want *ImportError", err)
	}
	if ie.Index != 2 || ie.Name != "Bob" {
		t.Errorf("ImportError = %+v, want row 2 (Bob)", ie)
	}
	if re, ok := registry.AsRemote(err); !ok || re.StatusCode != http.StatusConflict {
		t.Errorf("error should wrap the 409 RemoteError, got %v", err)
	}
	if got := MapError(err).Message; got != "Failed to import row 2 (Bob): guest Bob already exists" {
		t.Errorf("user message = %q", got)
	}

	stored := srv.Guests("evt")
	if len(stored) != 1 || stored[0].Name != "Ann" {
		t.Errorf("registry = %+v, want only Ann", stored)
	}
	if n := srv.CallCount(http.MethodPost); n != 2 {
		t.Errorf("create calls = %d, want 2 (Cid never sent)", n)
	}

	// The refreshed list shows the committed row
	if result.Snapshot.Len() != 1 || result.Snapshot.Guests[0].Name != "Ann" {
		t.Errorf("snapshot = %+v, want only Ann", result.Snapshot.Guests)
	}
	if result.Submitted != 1 {
		t.Errorf("submitted = %d, want 1", result.Submitted)
	}

	st := svc.ImportStatus("evt")
	if st.State != ImportFailed || st.FailedRow != 2 || st.FailedName != "Bob" {
		t.Errorf("status = %+v, want failed at row 2 (Bob)", st)
	}
}

func TestImport_FailFastPartialCommit(t *testing.T) {
	const n = 5

	for k := 1; k <= n; k++ {
		t.Run(fmt.Sprintf("fail at %d", k), func(t *testing.T) {
			svc, srv := newTestService(t, Options{})

			var lines []string
			for i := 1; i <= n; i++ {
				lines = append(lines, fmt.Sprintf("guest-%d", i))
			}
			srv.RejectCreate(fmt.Sprintf("guest-%d", k), http.StatusBadRequest, "rejected")

			_, err := svc.ImportText(context.Background(), "evt", "", strings.Join(lines, "\n"))
			if err == nil {
				t.Fatal("expected error")
			}

			stored := srv.Guests("evt")
			if len(stored) != k-1 {
				t.Fatalf("registry has %d guests, want %d", len(stored), k-1)
			}
			for i, g := range stored {
				if want := fmt.Sprintf("guest-%d", i+1); g.Name != want {
					t.Errorf("guest %d = %q, want %q", i, g.Name, want)
				}
			}
			if calls := srv.CallCount(http.MethodPost); calls != k {
				t.Errorf("create calls = %d, want %d", calls, k)
			}
		})
	}
}

func TestImport_RetryAfterFailureCreatesDuplicates(t *testing.T) {
	svc, srv := newTestService(t, Options{})
	srv.RejectCreate("Bob", http.StatusConflict, "nope")

	_, _ = svc.ImportText(context.Background(), "evt", "", "Ann\nBob")

	// Same file again: no dedup, so Ann is created twice
	_, _ = svc.ImportText(context.Background(), "evt", "", "Ann\nBob")

	stored := srv.Guests("evt")
	if len(stored) != 2 || stored[0].Name != "Ann" || stored[1].Name != "Ann" {
		t.Errorf("registry = %+v, want Ann twice", stored)
	}
}

// ============================================================================
// Task lock
// ============================================================================

func TestImport_RejectedWhileEventBusy(t *testing.T) {
	lock := NewMemoryTaskLock()
	svc, srv := newTestService(t, Options{Locks: lock})

	release, err := lock.TryAcquire(context.Background(), "evt")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	_, err = svc.ImportText(context.Background(), "evt", "", "Ann")
	if !errors.Is(err, ErrEventBusy) {
		t.Errorf("error = %v, want ErrEventBusy", err)
	}
	if calls := srv.Calls(); len(calls) != 0 {
		t.Errorf("made %d registry calls, want 0", len(calls))
	}
}

func TestImport_BlocksManualEditsAndSecondImport(t *testing.T) {
	svc, srv := newTestService(t, Options{})

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	srv.OnCreate(func(_ string, in schema.GuestInput) {
		if in.Name == "Ann" {
			once.Do(func() { close(entered) })
			<-unblock
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := svc.ImportText(context.Background(), "evt", "", "Ann\nBob")
		done <- err
	}()

	<-entered

	if st := svc.ImportStatus("evt"); st.State != ImportImporting {
		t.Errorf("state during import = %s, want importing", st.State)
	}
	if svc.ActiveImports() != 1 {
		t.Errorf("ActiveImports = %d, want 1", svc.ActiveImports())
	}

	ctx := context.Background()
	if _, _, err := svc.Create(ctx, "evt", schema.GuestInput{Name: "Zed"}); !errors.Is(err, ErrEventBusy) {
		t.Errorf("Create during import: %v, want ErrEventBusy", err)
	}
	if _, _, err := svc.Update(ctx, "evt", "g1", schema.GuestInput{Name: "Zed"}); !errors.Is(err, ErrEventBusy) {
		t.Errorf("Update during import: %v, want ErrEventBusy", err)
	}
	if _, err := svc.Delete(ctx, "evt", "g1"); !errors.Is(err, ErrEventBusy) {
		t.Errorf("Delete during import: %v, want ErrEventBusy", err)
	}
	if _, err := svc.ImportText(ctx, "evt", "", "Cid"); !errors.Is(err, ErrEventBusy) {
		t.Errorf("second import: %v, want ErrEventBusy", err)
	}

	// Other events are unaffected
	if _, _, err := svc.Create(ctx, "other", schema.GuestInput{Name: "Zed"}); err != nil {
		t.Errorf("Create on another event failed: %v", err)
	}

	close(unblock)
	if err := <-done; err != nil {
		t.Fatalf("import failed: %v", err)
	}

	if got := srv.Guests("evt"); len(got) != 2 {
		t.Errorf("registry has %d guests, want 2", len(got))
	}
	if svc.ActiveImports() != 0 {
		t.Errorf("ActiveImports after import = %d, want 0", svc.ActiveImports())
	}
}

// ============================================================================
// Context handling
// ============================================================================

func TestImport_SurvivesCallerCancellation(t *testing.T) {
	svc, srv := newTestService(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	srv.OnCreate(func(_ string, in schema.GuestInput) {
		if in.Name == "Ann" {
			cancel()
		}
	})

	_, err := svc.ImportText(ctx, "evt", "", "Ann\nBob\nCid")
	if err != nil {
		t.Fatalf("import failed after caller cancellation: %v", err)
	}
	if got := srv.Guests("evt"); len(got) != 3 {
		t.Errorf("registry has %d guests, want 3", len(got))
	}
}

func TestImport_TimeoutFailsCurrentRow(t *testing.T) {
	svc, srv := newTestService(t, Options{ImportTimeout: 200 * time.Millisecond})

	srv.OnCreate(func(_ string, in schema.GuestInput) {
		if in.Name == "Bob" {
			time.Sleep(500 * time.Millisecond)
		}
	})

	res, err := svc.ImportText(context.Background(), "evt", "", "Ann\nBob\nCid")

	var ie *ImportError
	if !errors.As(err, &ie) || ie.Name != "Bob" {
		t.Fatalf("error = %v, want ImportError for Bob", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error should wrap context.DeadlineExceeded, got %v", err)
	}
	if n := srv.CallCount(http.MethodPost); n != 2 {
		t.Errorf("create calls = %d, want 2", n)
	}

	// The guest list is still re-read after the batch ran out of time
	if res.Snapshot.Version == 0 {
		t.Fatal("snapshot was not refreshed after the timeout")
	}
	if len(res.Snapshot.Guests) == 0 || res.Snapshot.Guests[0].Name != "Ann" {
		t.Errorf("snapshot guests = %+v, want Ann first", res.Snapshot.Guests)
	}

	entries, err := svc.History(context.Background(), "evt", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].State != ImportFailed || entries[0].FailedName != "Bob" {
		t.Errorf("history = %+v, want one failed entry for Bob", entries)
	}
}

// ============================================================================
// File handling and history
// ============================================================================

func TestImport_FileTooLarge(t *testing.T) {
	svc, srv := newTestService(t, Options{MaxFileSize: 16})

	_, err := svc.Import(context.Background(), "evt", "big.csv", strings.NewReader(strings.Repeat("Ann\n", 10)))
	if !errors.Is(err, csv.ErrFileTooLarge) {
		t.Errorf("error = %v, want ErrFileTooLarge", err)
	}
	if calls := srv.Calls(); len(calls) != 0 {
		t.Errorf("made %d registry calls, want 0", len(calls))
	}
}

func TestImport_BOMStripped(t *testing.T) {
	svc, srv := newTestService(t, Options{})

	_, err := svc.Import(context.Background(), "evt", "", strings.NewReader("\xEF\xBB\xBFname,status\nAnn,checked in"))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	got := srv.Guests("evt")
	if len(got) != 1 || got[0].Name != "Ann" || got[0].Status != schema.StatusCheckedIn {
		t.Errorf("registry = %+v, want Ann checked in", got)
	}
}

func TestImport_RecordsHistory(t *testing.T) {
	history := NewMemoryHistory()
	svc, srv := newTestService(t, Options{History: history})
	srv.RejectCreate("Bob", http.StatusConflict, "dup")

	ctx := ContextWithIPAddress(context.Background(), "10.0.0.1")
	ctx = ContextWithUserAgent(ctx, "test-agent")

	if _, err := svc.ImportText(ctx, "evt", "first.csv", "Ann"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	_, _ = svc.ImportText(ctx, "evt", "second.csv", "Cid\nBob")

	entries, err := svc.History(context.Background(), "evt", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("history has %d entries, want 2", len(entries))
	}

	latest := entries[0]
	if latest.FileName != "second.csv" || latest.State != ImportFailed || latest.FailedName != "Bob" {
		t.Errorf("latest entry = %+v", latest)
	}
	if latest.IPAddress != "10.0.0.1" || latest.UserAgent != "test-agent" {
		t.Errorf("client info = %q / %q", latest.IPAddress, latest.UserAgent)
	}
	if latest.FinishedAt == nil {
		t.Error("FinishedAt should be set")
	}
	if entries[1].State != ImportCompleted || entries[1].Submitted != 1 {
		t.Errorf("first entry = %+v", entries[1])
	}
}
