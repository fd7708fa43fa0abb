package wallet

import "testing"

func TestMemoryAdapter_ReserveAndCredit(t *testing.T) {
	m := NewMemoryAdapter(1000)

	if err := m.Reserve("p1", 400); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got := m.Balance("p1"); got != 600 {
		t.Fatalf("expected balance 600, got %d", got)
	}
	if err := m.Reserve("p1", 700); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := m.Credit("p1", 250); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if got := m.Balance("p1"); got != 850 {
		t.Fatalf("expected balance 850, got %d", got)
	}
}

func TestMemoryAdapter_RakeContributionRecorded(t *testing.T) {
	m := NewMemoryAdapter(1000)
	meta := HandMeta{TableID: "t1", HandID: "t1_h7", Pot: 300}
	shares := map[string]int64{"p1": 100, "p2": 200}

	if err := m.RakeContribution(meta, shares); err != nil {
		t.Fatalf("RakeContribution: %v", err)
	}
	reports := m.RakeReports()
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}
	if reports[0].Meta != meta || reports[0].Shares["p2"] != 200 {
		t.Fatalf("report mismatch: %+v", reports[0])
	}

	// The stored shares are a copy, not an alias.
	shares["p2"] = 0
	if m.RakeReports()[0].Shares["p2"] != 200 {
		t.Fatalf("report aliased the caller's map")
	}
}
