package vitals

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/vitalink/internal/decode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher() *Publisher {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewPublisher(16, logger)
}

func TestPublisherInitialSnapshot(t *testing.T) {
	p := newTestPublisher()

	snap := p.Snapshot()
	assert.Nil(t, snap.ActiveDevice)
	assert.Nil(t, snap.Systolic)
	assert.Nil(t, snap.Diastolic)
	assert.Nil(t, snap.HeartRate)
}

func TestPublisherApply(t *testing.T) {
	p := newTestPublisher()

	p.Apply(decode.Update{Kind: decode.KindBloodPressure, Systolic: 120, Diastolic: 80})
	p.Apply(decode.Update{Kind: decode.KindHeartRate, HeartRate: 72})

	snap := p.Snapshot()
	require.NotNil(t, snap.Systolic)
	require.NotNil(t, snap.Diastolic)
	require.NotNil(t, snap.HeartRate)
	assert.Equal(t, uint16(120), *snap.Systolic)
	assert.Equal(t, uint16(80), *snap.Diastolic)
	assert.Equal(t, uint8(72), *snap.HeartRate)
}

func TestPublisherApplyUnknownKindIsNoop(t *testing.T) {
	p := newTestPublisher()

	p.Apply(decode.Update{Kind: decode.KindUnknown})

	snap := p.Snapshot()
	assert.Nil(t, snap.Systolic)
	assert.Nil(t, snap.HeartRate)
}

func TestPublisherClearActiveDeviceKeepsReadings(t *testing.T) {
	p := newTestPublisher()

	p.SetActiveDevice(Device{ID: "AA:BB:CC:DD:EE:FF", Name: "BPM-1"})
	p.Apply(decode.Update{Kind: decode.KindBloodPressure, Systolic: 120, Diastolic: 80})

	p.ClearActiveDevice()

	snap := p.Snapshot()
	assert.Nil(t, snap.ActiveDevice)
	require.NotNil(t, snap.Systolic)
	assert.Equal(t, uint16(120), *snap.Systolic)
	require.NotNil(t, snap.Diastolic)
	assert.Equal(t, uint16(80), *snap.Diastolic)
}

func TestPublisherReset(t *testing.T) {
	p := newTestPublisher()

	p.SetActiveDevice(Device{ID: "AA:BB:CC:DD:EE:FF"})
	p.Apply(decode.Update{Kind: decode.KindHeartRate, HeartRate: 64})

	p.Reset()

	snap := p.Snapshot()
	assert.Nil(t, snap.Systolic)
	assert.Nil(t, snap.Diastolic)
	assert.Nil(t, snap.HeartRate)
	// Reset clears readings, not the connection identity.
	assert.NotNil(t, snap.ActiveDevice)
}

func TestPublisherObserveDeliversCompleteSnapshots(t *testing.T) {
	p := newTestPublisher()

	p.Apply(decode.Update{Kind: decode.KindBloodPressure, Systolic: 118, Diastolic: 76})

	select {
	case snap := <-p.Observe():
		require.NotNil(t, snap.Systolic)
		assert.Equal(t, uint16(118), *snap.Systolic)
		require.NotNil(t, snap.Diastolic)
		assert.Equal(t, uint16(76), *snap.Diastolic)
	default:
		t.Fatal("expected a snapshot on the observer stream")
	}
}

func TestPublisherObserverSnapshotsAreIsolated(t *testing.T) {
	p := newTestPublisher()

	p.Apply(decode.Update{Kind: decode.KindHeartRate, HeartRate: 60})
	first := p.Snapshot()

	p.Apply(decode.Update{Kind: decode.KindHeartRate, HeartRate: 90})

	// Earlier copy is unaffected by later writes.
	require.NotNil(t, first.HeartRate)
	assert.Equal(t, uint8(60), *first.HeartRate)
}

func TestPublisherLaggingObserverDropsOldest(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	p := NewPublisher(1, logger)

	p.Apply(decode.Update{Kind: decode.KindHeartRate, HeartRate: 60})
	p.Apply(decode.Update{Kind: decode.KindHeartRate, HeartRate: 61})
	p.Apply(decode.Update{Kind: decode.KindHeartRate, HeartRate: 62})

	snap := <-p.Observe()
	require.NotNil(t, snap.HeartRate)
	assert.Equal(t, uint8(62), *snap.HeartRate)
}

func TestPublisherCloseStopsStream(t *testing.T) {
	p := newTestPublisher()

	p.Close()
	p.Close() // idempotent
	p.Apply(decode.Update{Kind: decode.KindHeartRate, HeartRate: 70})

	_, open := <-p.Observe()
	assert.False(t, open)
}
