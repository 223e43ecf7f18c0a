package observability

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func tokens(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestObserveOperationSplitsOutcome(t *testing.T) {
	m := CDP()
	m.ObserveOperation("open_trove", time.Millisecond, "")
	m.ObserveOperation("open_trove", time.Millisecond, "invariant")
	m.ObserveOperation(" ", time.Millisecond, "validation")

	if got := testutil.ToFloat64(m.operations.WithLabelValues("open_trove", "success", "")); got != 1 {
		t.Fatalf("success count %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("open_trove", "error", "invariant")); got != 1 {
		t.Fatalf("error count %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("unknown", "error", "validation")); got != 1 {
		t.Fatalf("blank operation should be labelled unknown, got %v", got)
	}
}

func TestRecordLiquidationAndGauges(t *testing.T) {
	m := CDP()
	m.RecordLiquidation("weth", 2, tokens(1000), tokens(250))

	if got := testutil.ToFloat64(m.liquidations.WithLabelValues("WETH")); got != 2 {
		t.Fatalf("positions %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.liquidated.WithLabelValues("WETH", "offset")); got != 1000 {
		t.Fatalf("offset %v, want 1000", got)
	}
	if got := testutil.ToFloat64(m.liquidated.WithLabelValues("WETH", "redistributed")); got != 250 {
		t.Fatalf("redistributed %v, want 250", got)
	}

	ratio := new(big.Int).Quo(tokens(3), big.NewInt(2))
	m.RecordSystem(ratio, false)
	if got := testutil.ToFloat64(m.tcr); got != 1.5 {
		t.Fatalf("tcr %v, want 1.5", got)
	}
	if got := testutil.ToFloat64(m.recovery); got != 0 {
		t.Fatalf("recovery %v, want 0", got)
	}
	m.RecordSystem(tokens(1), true)
	if got := testutil.ToFloat64(m.recovery); got != 1 {
		t.Fatalf("recovery %v, want 1", got)
	}

	m.RecordPool(tokens(42), 3, 1)
	if got := testutil.ToFloat64(m.poolDeposits); got != 42 {
		t.Fatalf("deposits %v, want 42", got)
	}
	if got := testutil.ToFloat64(m.poolEpoch); got != 3 {
		t.Fatalf("epoch %v, want 3", got)
	}
}

func TestRecordEventNormalisesType(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.emitted.WithLabelValues("unknown"))
	m.RecordEvent("  ")
	m.RecordEvent("trove.opened")
	if got := testutil.ToFloat64(m.emitted.WithLabelValues("unknown")); got != before+1 {
		t.Fatalf("unknown count %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(m.emitted.WithLabelValues("trove.opened")); got < 1 {
		t.Fatalf("trove.opened not counted")
	}
}
