package device

// Gallery is an in-memory print store a driver can embed to trivially
// satisfy ListDriver/DeleteDriver/ClearStorageDriver without real
// on-device storage (spec §13 supplement, grounded on
// original_source/libfprint/fp-device.c's fpi_device_list_complete /
// fpi_device_delete_complete / fpi_device_clear_storage_complete). Only
// ever touched from the reactor goroutine, like everything else in this
// package, so it carries no lock.
type Gallery struct {
	prints []*Print
}

// NewGallery returns an empty Gallery.
func NewGallery() *Gallery { return &Gallery{} }

// Add appends a freshly enrolled print to the gallery.
func (g *Gallery) Add(p *Print) {
	cp := p.Clone()
	cp.DeviceStored = true
	g.prints = append(g.prints, cp)
}

// List returns a snapshot of the stored prints.
func (g *Gallery) List() []*Print {
	out := make([]*Print, len(g.prints))
	for i, p := range g.prints {
		out[i] = p.Clone()
	}
	return out
}

// Delete removes the first stored print equal to target, reporting
// DataNotFound if none matches.
func (g *Gallery) Delete(target *Print) error {
	for i, p := range g.prints {
		if p.Equal(target) {
			g.prints = append(g.prints[:i], g.prints[i+1:]...)
			return nil
		}
	}
	return NewError(ErrDataNotFound, "print not found in gallery")
}

// Clear wipes the gallery.
func (g *Gallery) Clear() {
	g.prints = nil
}

// Find returns the first stored print equal to target, or nil.
func (g *Gallery) Find(target *Print) *Print {
	for _, p := range g.prints {
		if p.Equal(target) {
			return p.Clone()
		}
	}
	return nil
}
