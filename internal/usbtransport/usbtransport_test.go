package usbtransport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSetsVIDPID(t *testing.T) {
	tr := New(0x04cc, 0x0116)
	assert.EqualValues(t, 0x04cc, tr.vid)
	assert.EqualValues(t, 0x0116, tr.pid)
	assert.NotNil(t, tr.ifaces)
	assert.Empty(t, tr.ifaces)
}

// SubmitBulk against an interface that was never claimed (no device ever
// opened) must fail rather than panic on a nil *gousb.Interface lookup.
func TestSubmitBulkOnUnclaimedInterfaceErrors(t *testing.T) {
	tr := New(0x04cc, 0x0116)
	_, err := tr.SubmitBulk(context.Background(), 0, 0x81, make([]byte, 16), false)
	assert.Error(t, err)
}

// ReleaseInterface on an interface that was never claimed is a no-op, not
// an error, so Close can unconditionally release every interface number a
// caller attempted to claim.
func TestReleaseInterfaceOnUnclaimedInterfaceIsNoop(t *testing.T) {
	tr := New(0x04cc, 0x0116)
	assert.NoError(t, tr.ReleaseInterface(0))
}

func TestControlConstantsMatchLibusbRequestTypeBits(t *testing.T) {
	assert.EqualValues(t, 0x80, ControlDirIn)
	assert.EqualValues(t, 0x00, ControlDirOut)
	assert.EqualValues(t, 0x40, ControlTypeVendor)
	assert.EqualValues(t, 0x00, RecipientDevice)
	assert.EqualValues(t, 0x01, RecipientInterface)
	assert.EqualValues(t, 0x02, RecipientEndpoint)
}
