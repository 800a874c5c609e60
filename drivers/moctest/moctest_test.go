package moctest

import (
	"context"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fprintcore/internal/device"
	"fprintcore/internal/obslog"
	"fprintcore/internal/reactor"
	"fprintcore/internal/sdcp"
)

func newTestRig(t *testing.T) (*device.Device, *Driver) {
	t.Helper()
	drv, rootDER, err := NewDriver()
	require.NoError(t, err)
	rootPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: rootDER})
	trust, err := sdcp.NewTrustStore(rootPEM)
	require.NoError(t, err)

	rx := reactor.New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go rx.Run(ctx)

	sess := sdcp.New(rx, drv, trust, obslog.Nop())
	base := device.New(rx, sess, obslog.Nop(), device.Config{
		DriverID: "moctest", DeviceID: "moctest0", Name: "Mock On-Chip Test Sensor",
		NrEnrollStages: 1, ScanType: device.ScanPress,
	})
	sess.SetBase(base)
	return base, drv
}

func TestConnectEnrollAndIdentifyRoundTrip(t *testing.T) {
	base, drv := newTestRig(t)
	require.NoError(t, (<-base.OpenAsync(context.Background())).Err)

	drv.QueueEnrollSample([]byte("alice left index"))
	enrollRes := <-base.EnrollAsync(context.Background(), &device.Print{}, nil)
	require.NoError(t, enrollRes.Err)
	require.NotNil(t, enrollRes.Print)

	drv.QueueIdentifySample([]byte("alice left index"))
	idRes := <-base.IdentifyAsync(context.Background(), []*device.Print{enrollRes.Print})
	require.NoError(t, idRes.Err)
	require.NotNil(t, idRes.Matched)
	assert.True(t, idRes.Matched.Equal(enrollRes.Print))
}

func TestIdentifyWithNoMatchReportsNil(t *testing.T) {
	base, drv := newTestRig(t)
	require.NoError(t, (<-base.OpenAsync(context.Background())).Err)

	drv.QueueEnrollSample([]byte("bob right thumb"))
	enrollRes := <-base.EnrollAsync(context.Background(), &device.Print{}, nil)
	require.NoError(t, enrollRes.Err)

	drv.QueueIdentifySample([]byte("an unenrolled scan"))
	idRes := <-base.IdentifyAsync(context.Background(), []*device.Print{enrollRes.Print})
	require.NoError(t, idRes.Err)
	assert.Nil(t, idRes.Matched)
}

func TestDeleteRemovesEnrolledSample(t *testing.T) {
	base, drv := newTestRig(t)
	require.NoError(t, (<-base.OpenAsync(context.Background())).Err)

	drv.QueueEnrollSample([]byte("carol thumb"))
	enrollRes := <-base.EnrollAsync(context.Background(), &device.Print{}, nil)
	require.NoError(t, enrollRes.Err)

	require.NoError(t, (<-base.DeleteAsync(context.Background(), enrollRes.Print)).Err)

	drv.QueueIdentifySample([]byte("carol thumb"))
	idRes := <-base.IdentifyAsync(context.Background(), []*device.Print{enrollRes.Print})
	require.NoError(t, idRes.Err)
	assert.Nil(t, idRes.Matched)
}
