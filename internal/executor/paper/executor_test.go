package paper

import (
	"context"
	"testing"
	"time"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/decision"
)

func TestExecute_RejectsHold(t *testing.T) {
	e := New(Options{Seed: 1})
	err := e.Execute(context.Background(), decision.Decision{ID: "d1", Action: decision.ActionHold})
	if err == nil {
		t.Fatal("HOLD must not be executable")
	}
	if e.OpenCount() != 0 {
		t.Fatal("rejected decision must not open a position")
	}
}

func TestSettle_WaitsForWindow(t *testing.T) {
	clock := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	e := New(Options{Seed: 7, SettleDelay: 30 * time.Second, Now: now})

	ctx := context.Background()
	if err := e.Execute(ctx, decision.Decision{ID: "d1", Action: decision.ActionBuy, Token: "PEPE", Size: 0.05}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := e.Settle(ctx); len(got) != 0 {
		t.Fatalf("position should not settle before the window, got %d", len(got))
	}

	clock = clock.Add(31 * time.Second)
	got := e.Settle(ctx)
	if len(got) != 1 {
		t.Fatalf("expected one result, got %d", len(got))
	}
	res := got[0]
	if res.ID != "d1" {
		t.Errorf("result must carry the decision id, got %s", res.ID)
	}
	if !res.Simulated {
		t.Error("paper results must be marked simulated")
	}
	if res.Success && (res.PnL < -maxMovePerTrade || res.PnL > maxMovePerTrade) {
		t.Errorf("pnl escaped the move cap: %.4f", res.PnL)
	}
	if e.OpenCount() != 0 {
		t.Error("settled position should be removed")
	}
}

func TestObserve_TracksHoldAsShadow(t *testing.T) {
	clock := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	e := New(Options{Seed: 7, SettleDelay: 30 * time.Second, Now: now})
	ctx := context.Background()

	e.Observe(ctx, decision.Decision{ID: "h1", Action: decision.ActionHold, Token: "WIF"})
	e.Observe(ctx, decision.Decision{ID: "b1", Action: decision.ActionBuy, Token: "WIF"})
	if e.OpenCount() != 1 {
		t.Fatalf("only HOLD decisions may become shadows, got %d tracked", e.OpenCount())
	}

	clock = clock.Add(31 * time.Second)
	got := e.Settle(ctx)
	if len(got) != 1 {
		t.Fatalf("expected one shadow result, got %d", len(got))
	}
	if got[0].ID != "h1" || !got[0].Success || !got[0].Simulated {
		t.Fatalf("shadow result malformed: %+v", got[0])
	}
}

func TestSimulatePnL_DeterministicAndSided(t *testing.T) {
	buy := New(Options{Seed: 42}).simulatePnL(decision.Decision{Action: decision.ActionBuy, Size: 0.05})
	buyAgain := New(Options{Seed: 42}).simulatePnL(decision.Decision{Action: decision.ActionBuy, Size: 0.05})
	if buy != buyAgain {
		t.Fatalf("same seed must give same pnl: %.4f vs %.4f", buy, buyAgain)
	}
	sell := New(Options{Seed: 42}).simulatePnL(decision.Decision{Action: decision.ActionSell, Size: 0.05})
	if buy != -sell {
		t.Fatalf("sell should mirror buy under the same draw: %.4f vs %.4f", buy, sell)
	}
}
