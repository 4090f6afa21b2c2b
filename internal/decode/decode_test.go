package decode

import (
	"testing"

	"github.com/srg/vitalink/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBloodPressure(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		u, ok := Decode(profile.BloodPressureMeasurement, []byte{0x78, 0x00, 0x50, 0x00})

		require.True(t, ok)
		assert.Equal(t, KindBloodPressure, u.Kind)
		assert.Equal(t, uint16(120), u.Systolic)
		assert.Equal(t, uint16(80), u.Diastolic)
	})

	t.Run("extra trailing bytes ignored", func(t *testing.T) {
		u, ok := Decode(profile.BloodPressureMeasurement, []byte{0x2c, 0x01, 0x64, 0x00, 0xff, 0xff})

		require.True(t, ok)
		assert.Equal(t, uint16(300), u.Systolic)
		assert.Equal(t, uint16(100), u.Diastolic)
	})

	t.Run("short payloads fail", func(t *testing.T) {
		for _, data := range [][]byte{nil, {}, {0x78}, {0x78, 0x00}, {0x78, 0x00, 0x50}} {
			_, ok := Decode(profile.BloodPressureMeasurement, data)
			assert.False(t, ok, "payload %v must not decode", data)
		}
	})
}

func TestDecodeHeartRate(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		u, ok := Decode(profile.HeartRateMeasurement, []byte{0x48})

		require.True(t, ok)
		assert.Equal(t, KindHeartRate, u.Kind)
		assert.Equal(t, uint8(72), u.HeartRate)
	})

	t.Run("empty payload fails", func(t *testing.T) {
		_, ok := Decode(profile.HeartRateMeasurement, []byte{})
		assert.False(t, ok)

		_, ok = Decode(profile.HeartRateMeasurement, nil)
		assert.False(t, ok)
	})

	t.Run("full range", func(t *testing.T) {
		u, ok := Decode(profile.HeartRateMeasurement, []byte{0xff})

		require.True(t, ok)
		assert.Equal(t, uint8(255), u.HeartRate)
	})
}

func TestDecodeUnknownCharacteristic(t *testing.T) {
	_, ok := Decode("2a19", []byte{0x64})
	assert.False(t, ok)
}

func TestDecodeNormalizesCharacteristicUUID(t *testing.T) {
	u, ok := Decode("00002A37-0000-1000-8000-00805F9B34FB", []byte{0x3c})

	require.True(t, ok)
	assert.Equal(t, uint8(60), u.HeartRate)
}
