// Package decode turns raw characteristic payloads into typed vitals
// updates. Decoding is pure: malformed frames yield ok=false and are dropped
// by the caller — intermittent garbage is normal on a real radio link.
package decode

import (
	"encoding/binary"

	"github.com/srg/vitalink/internal/profile"
)

// Kind identifies which vitals stream an update belongs to.
type Kind int

const (
	KindUnknown Kind = iota
	KindBloodPressure
	KindHeartRate
)

func (k Kind) String() string {
	switch k {
	case KindBloodPressure:
		return "blood_pressure"
	case KindHeartRate:
		return "heart_rate"
	default:
		return "unknown"
	}
}

// Update is a decoded partial vitals reading. Only the fields implied by
// Kind are meaningful.
type Update struct {
	Kind      Kind
	Systolic  uint16
	Diastolic uint16
	HeartRate uint8
}

// minimum payload lengths per characteristic
const (
	bloodPressureMinLen = 4
	heartRateMinLen     = 1
)

// Decode parses a payload received on the given characteristic. ok is false
// for unrecognized characteristics and for payloads shorter than the
// characteristic's minimum frame.
func Decode(characteristic string, data []byte) (Update, bool) {
	switch profile.NormalizeUUID(characteristic) {
	case profile.BloodPressureMeasurement:
		return decodeBloodPressure(data)
	case profile.HeartRateMeasurement:
		return decodeHeartRate(data)
	default:
		return Update{}, false
	}
}

// decodeBloodPressure reads systolic from bytes 0-1 and diastolic from
// bytes 2-3, both little-endian.
func decodeBloodPressure(data []byte) (Update, bool) {
	if len(data) < bloodPressureMinLen {
		return Update{}, false
	}
	return Update{
		Kind:      KindBloodPressure,
		Systolic:  binary.LittleEndian.Uint16(data[0:2]),
		Diastolic: binary.LittleEndian.Uint16(data[2:4]),
	}, true
}

// decodeHeartRate reads beats-per-minute from byte 0.
func decodeHeartRate(data []byte) (Update, bool) {
	if len(data) < heartRateMinLen {
		return Update{}, false
	}
	return Update{
		Kind:      KindHeartRate,
		HeartRate: data[0],
	}, true
}
