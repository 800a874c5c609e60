package idtable

import "testing"

func TestRegisterAndMatch(t *testing.T) {
	tbl := New()
	err := tbl.Register("virtual", Row{ID: ID{VID: 0x1234, PID: 0x5678}, DriverData: 1})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	entry, ok := tbl.Match(0x1234, 0x5678)
	if !ok {
		t.Fatal("Match should have found the registered row")
	}
	if entry.DriverID != "virtual" || entry.DriverData != 1 {
		t.Errorf("unexpected entry: %+v", entry)
	}

	if _, ok := tbl.Match(0xFFFF, 0xFFFF); ok {
		t.Error("Match should not find an unregistered id")
	}
}

func TestRegisterCollisionFails(t *testing.T) {
	tbl := New()
	row := Row{ID: ID{VID: 1, PID: 2}, DriverData: 0}
	if err := tbl.Register("driver-a", row); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := tbl.Register("driver-b", row); err == nil {
		t.Error("expected collision error registering the same id for a second driver")
	}
}

func TestEntriesSnapshot(t *testing.T) {
	tbl := New()
	_ = tbl.Register("a", Row{ID: ID{VID: 1, PID: 1}}, Row{ID: ID{VID: 1, PID: 2}})
	if len(tbl.Entries()) != 2 {
		t.Errorf("expected 2 entries, got %d", len(tbl.Entries()))
	}
}
