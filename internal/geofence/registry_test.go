package geofence

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegistry_AddResolvesID(t *testing.T) {
	reg, p := newTestRegistry()
	ctx := context.Background()

	id, err := wait(t, reg.Add(ctx, mustDef(t, "home", 1.0, 2.0)))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if id != "home" {
		t.Errorf("Add() = %q, want home", id)
	}

	if _, ok := reg.Get("home"); !ok {
		t.Error("home should be registered after acknowledgement")
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}

	req := p.adds[0]
	if req.InitialTrigger != InitialTriggerEnter {
		t.Errorf("InitialTrigger = %d, want ENTER", req.InitialTrigger)
	}
	if req.Handle.Token == "" || req.Handle.Topic == "" {
		t.Errorf("Handle = %+v, want populated", req.Handle)
	}
	if req.Geofences[0].Radius != 50 {
		t.Errorf("Radius = %v, want default 50", req.Geofences[0].Radius)
	}
}

func TestRegistry_AddAllPreservesOrder(t *testing.T) {
	reg, _ := newTestRegistry()
	defs := []Definition{
		mustDef(t, "c", 0, 0),
		mustDef(t, "a", 0, 0),
		mustDef(t, "b", 0, 0),
	}

	ids, err := wait(t, reg.AddAll(context.Background(), defs))
	if err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("AddAll() = %v, want %v", ids, want)
		}
	}
	if got := reg.IDs(); len(got) != 3 || got[0] != "a" {
		t.Errorf("IDs() = %v, want sorted a,b,c", got)
	}
}

func TestRegistry_AddAllEmptyRejected(t *testing.T) {
	reg, p := newTestRegistry()
	_, err := wait(t, reg.AddAll(context.Background(), nil))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("AddAll(nil) error = %v, want InvalidArgument", err)
	}
	if len(p.adds) != 0 {
		t.Error("empty batch must not reach the platform")
	}
}

func TestRegistry_PlatformFailureLeavesStateUnchanged(t *testing.T) {
	reg, p := newTestRegistry()
	ctx := context.Background()
	p.fail = FromStatus(StatusNotAvailable, "")

	_, err := wait(t, reg.Add(ctx, mustDef(t, "home", 1, 2)))
	if !errors.Is(err, &Error{Kind: PlatformAPIError, StatusCode: StatusNotAvailable}) {
		t.Fatalf("Add() error = %v, want status 1000", err)
	}

	var ge *Error
	if !errors.As(err, &ge) || ge.Code != "GEOFENCE_NOT_AVAILABLE" {
		t.Errorf("error code = %v", err)
	}
	if _, ok := reg.Get("home"); ok {
		t.Error("failed add must not register home")
	}
	if reg.Len() != 0 || reg.Pending() != 0 {
		t.Errorf("Len=%d Pending=%d, want 0 and 0", reg.Len(), reg.Pending())
	}
}

func TestRegistry_UntypedFailureBecomesUnknown(t *testing.T) {
	reg, p := newTestRegistry()
	p.fail = errors.New("broker gone")

	_, err := wait(t, reg.Remove(context.Background(), "x"))
	if !errors.Is(err, ErrUnknown) {
		t.Errorf("Remove() error = %v, want UnknownError", err)
	}
}

func TestRegistry_RemoveIdempotent(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		id, err := wait(t, reg.Remove(ctx, "never-added"))
		if err != nil || id != "never-added" {
			t.Errorf("Remove #%d = %q, %v", i+1, id, err)
		}
	}

	ids, err := wait(t, reg.RemoveAll(ctx, []string{"x", "y"}))
	if err != nil || len(ids) != 2 || ids[0] != "x" {
		t.Errorf("RemoveAll() = %v, %v", ids, err)
	}
}

func TestRegistry_RemoveAllEmptyResolvesWithoutCall(t *testing.T) {
	reg, p := newTestRegistry()
	ids, err := wait(t, reg.RemoveAll(context.Background(), nil))
	if err != nil || ids == nil || len(ids) != 0 {
		t.Errorf("RemoveAll(nil) = %v, %v; want [], nil", ids, err)
	}
	if len(p.removes) != 0 {
		t.Error("empty remove must not reach the platform")
	}
}

func TestRegistry_PendingIntentsWhileInFlight(t *testing.T) {
	reg, p := newTestRegistry()
	p.manual = true
	ctx := context.Background()

	res := reg.Add(ctx, mustDef(t, "home", 1, 2))
	if reg.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", reg.Pending())
	}
	intents := reg.PendingIntents()
	if intents[0].Op != OpAdd || intents[0].IDs[0] != "home" {
		t.Errorf("PendingIntents() = %+v", intents)
	}
	if _, ok := reg.Get("home"); ok {
		t.Error("region must not be committed before acknowledgement")
	}

	p.last().Resolve(struct{}{})
	if _, err := wait(t, res); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if reg.Pending() != 0 || reg.Len() != 1 {
		t.Errorf("Pending=%d Len=%d after ack, want 0 and 1", reg.Pending(), reg.Len())
	}
}

func TestRegistry_ClearThenSignalAdmitsNothing(t *testing.T) {
	reg, p := newTestRegistry()
	ctx := context.Background()

	if _, err := wait(t, reg.AddAll(ctx, []Definition{mustDef(t, "home", 0, 0), mustDef(t, "work", 0, 0)})); err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	if _, err := wait(t, reg.Clear(ctx)); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if len(p.clears) != 1 || p.clears[0] != p.adds[0].Handle {
		t.Errorf("Clear should remove by the add handle")
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d after clear, want 0", reg.Len())
	}

	// Including ids the registry never tracked (platform-persisted).
	if _, ok := reg.Admit([]string{"home", "work", "persisted-elsewhere"}); ok {
		t.Error("signal after clear must not be admitted")
	}

	// Re-adding after clear admits that id only.
	if _, err := wait(t, reg.Add(ctx, mustDef(t, "home", 0, 0))); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	admitted, ok := reg.Admit([]string{"home", "work"})
	if !ok || len(admitted) != 1 || admitted[0] != "home" {
		t.Errorf("Admit() = %v, %v; want [home], true", admitted, ok)
	}
}

func TestRegistry_FailedClearKeepsAdmitting(t *testing.T) {
	reg, p := newTestRegistry()
	ctx := context.Background()
	_, _ = wait(t, reg.Add(ctx, mustDef(t, "home", 0, 0)))

	p.fail = FromStatus(StatusError, "")
	if _, err := wait(t, reg.Clear(ctx)); err == nil {
		t.Fatal("Clear() expected error")
	}
	if _, ok := reg.Admit([]string{"home"}); !ok {
		t.Error("failed clear must not change admission")
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestRegistry_AdmitAfterRemove(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	// Before any clear, unknown ids (registered by an earlier process) pass.
	if ids, ok := reg.Admit([]string{"from-last-boot"}); !ok || ids[0] != "from-last-boot" {
		t.Errorf("Admit(unknown) = %v, %v", ids, ok)
	}

	_, _ = wait(t, reg.Add(ctx, mustDef(t, "a", 0, 0)))
	_, _ = wait(t, reg.Remove(ctx, "a"))

	admitted, ok := reg.Admit([]string{"a", "b"})
	if !ok || len(admitted) != 1 || admitted[0] != "b" {
		t.Errorf("Admit() = %v, %v; want [b], true", admitted, ok)
	}
	if _, ok := reg.Admit([]string{"a"}); ok {
		t.Error("removed id alone must be dropped")
	}

	_, _ = wait(t, reg.Add(ctx, mustDef(t, "a", 0, 0)))
	if _, ok := reg.Admit([]string{"a"}); !ok {
		t.Error("re-added id must be admitted again")
	}
}

func TestRegistry_AdmitEmptyPasses(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _ = wait(t, reg.Clear(context.Background()))

	ids, ok := reg.Admit(nil)
	if !ok || len(ids) != 0 {
		t.Errorf("Admit(nil) = %v, %v; want empty, true", ids, ok)
	}
}

func TestRegistry_LateAckIgnoredByAbandonedCaller(t *testing.T) {
	reg, p := newTestRegistry()
	p.manual = true

	res := reg.Add(context.Background(), mustDef(t, "home", 0, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, err := res.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v", err)
	}

	// The platform still answers; the registry commits and the result
	// settles exactly once.
	p.last().Resolve(struct{}{})
	if id, err := wait(t, res); err != nil || id != "home" {
		t.Errorf("late settlement = %q, %v", id, err)
	}
	if res.Resolve("again") {
		t.Error("result settled twice")
	}
}
