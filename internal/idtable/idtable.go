// Package idtable implements the device-identification registry spec §6
// describes: each driver publishes an ID table of (vid, pid,
// driver_data) rows, and the host matches a newly discovered USB device
// against the first driver with a matching row, passing driver_data into
// the instance. Grounded on other_examples' periph usb.go registry
// (ID{VenID,DevID} + Register/Opener), adapted to carry the spec's
// opaque driver_data and to return the winning row instead of invoking
// an opener callback directly (construction is the caller's job here,
// not the registry's).
package idtable

import (
	"fmt"
	"sync"
)

// ID identifies a USB peripheral by vendor and product id.
type ID struct {
	VID uint16
	PID uint16
}

func (i ID) String() string { return fmt.Sprintf("%04x:%04x", i.VID, i.PID) }

// Row is one entry in a driver's ID table: a (vid, pid) pair plus the
// opaque per-model data the driver uses to distinguish sensor variants
// that share a single driver implementation.
type Row struct {
	ID         ID
	DriverData uint64
}

// Entry is a registered row together with the name of the driver that
// published it.
type Entry struct {
	Row
	DriverID string
}

// Table is a registry of (vid, pid, driver_data) rows across every
// driver the host knows about. The zero value is usable.
type Table struct {
	mu      sync.RWMutex
	entries map[ID]Entry
}

// New builds an empty Table.
func New() *Table { return &Table{entries: make(map[ID]Entry)} }

// Register adds driverID's rows to the table. Returns an error if any
// row's ID collides with an already-registered one (spec §6: each row
// routes to exactly one driver).
func (t *Table) Register(driverID string, rows ...Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries == nil {
		t.entries = make(map[ID]Entry)
	}
	for _, row := range rows {
		if existing, ok := t.entries[row.ID]; ok {
			return fmt.Errorf("idtable: %s already claimed by driver %q, cannot register for %q", row.ID, existing.DriverID, driverID)
		}
	}
	for _, row := range rows {
		t.entries[row.ID] = Entry{Row: row, DriverID: driverID}
	}
	return nil
}

// Match looks up the driver (and driver_data) registered for vid:pid.
func (t *Table) Match(vid, pid uint16) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[ID{VID: vid, PID: pid}]
	return e, ok
}

// Entries returns a snapshot of every registered row, for diagnostics
// (cmd/fprint-monitor lists them).
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}
