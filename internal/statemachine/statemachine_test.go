package statemachine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/model"
)

func newMachine(ttl time.Duration) *Machine {
	return New(ttl, events.NewBus(), zerolog.Nop())
}

func TestCanEnterAllowsFlatSymbol(t *testing.T) {
	m := newMachine(time.Minute)
	if ok, reason := m.CanEnter("BTCUSDT", model.SideLong); !ok {
		t.Errorf("expected FLAT symbol to be enterable, denied with reason %q", reason)
	}
}

func TestEnterThenCanEnterDeniedAlreadyOpen(t *testing.T) {
	m := newMachine(time.Minute)
	if !m.Enter("BTCUSDT", model.SideLong) {
		t.Fatal("expected Enter to succeed from FLAT")
	}
	ok, reason := m.CanEnter("BTCUSDT", model.SideLong)
	if ok || reason != GateReasonAlreadyOpen {
		t.Errorf("expected ALREADY_IN_POSITION denial, got ok=%v reason=%v", ok, reason)
	}
}

func TestPauseBlocksAllEntries(t *testing.T) {
	m := newMachine(time.Minute)
	m.Pause()
	if ok, reason := m.CanEnter("BTCUSDT", model.SideLong); ok || reason != GateReasonPaused {
		t.Errorf("expected PAUSED denial, got ok=%v reason=%v", ok, reason)
	}
	m.Resume()
	if ok, _ := m.CanEnter("BTCUSDT", model.SideLong); !ok {
		t.Error("expected entries to be allowed again after Resume")
	}
}

func TestExitStoppedLocksWithAntiRageTTL(t *testing.T) {
	m := newMachine(50 * time.Millisecond)
	m.Enter("BTCUSDT", model.SideLong)
	m.StartExit("BTCUSDT")
	m.ExitStopped("BTCUSDT")

	if ok, reason := m.CanEnter("BTCUSDT", model.SideLong); ok || reason != GateReasonAntiRage {
		t.Errorf("expected ANTI_RAGE denial immediately after stop-loss exit, got ok=%v reason=%v", ok, reason)
	}

	time.Sleep(75 * time.Millisecond)

	if ok, _ := m.CanEnter("BTCUSDT", model.SideLong); !ok {
		t.Error("expected entry to be allowed once the anti-rage TTL has elapsed")
	}
}

func TestExitCleanReturnsToFlat(t *testing.T) {
	m := newMachine(time.Minute)
	m.Enter("BTCUSDT", model.SideLong)
	m.StartExit("BTCUSDT")
	m.ExitClean("BTCUSDT")

	entry, exists := m.Get("BTCUSDT")
	if exists {
		t.Errorf("expected stale entry to be pruned after exitClean, got %+v", entry)
	}
	if ok, _ := m.CanEnter("BTCUSDT", model.SideLong); !ok {
		t.Error("expected FLAT symbol (post exitClean) to be enterable")
	}
}

func TestStartExitRequiresOpenPosition(t *testing.T) {
	m := newMachine(time.Minute)
	if m.StartExit("BTCUSDT") {
		t.Error("expected StartExit to fail for a symbol with no open position")
	}
}

func TestForceUnlockClearsLockedSymbol(t *testing.T) {
	m := newMachine(time.Hour)
	m.Enter("BTCUSDT", model.SideLong)
	m.StartExit("BTCUSDT")
	m.ExitStopped("BTCUSDT")

	m.ForceUnlock("BTCUSDT")

	if ok, _ := m.CanEnter("BTCUSDT", model.SideLong); !ok {
		t.Error("expected ForceUnlock to clear the lock regardless of TTL")
	}
}

func TestPruneExpiredRemovesExpiredLocks(t *testing.T) {
	m := newMachine(10 * time.Millisecond)
	m.Enter("BTCUSDT", model.SideLong)
	m.StartExit("BTCUSDT")
	m.ExitStopped("BTCUSDT")

	time.Sleep(25 * time.Millisecond)
	m.PruneExpired()

	if _, exists := m.Get("BTCUSDT"); exists {
		t.Error("expected PruneExpired to remove an expired LOCKED entry")
	}
}
