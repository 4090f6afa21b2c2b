// Package profile holds the static GATT identifiers the pipeline recognizes.
// These are Bluetooth SIG assigned numbers, fixed at build time.
package profile

import (
	"sort"
	"strings"
)

const (
	// BloodPressureService is the SIG blood pressure service (0x1810).
	BloodPressureService = "1810"
	// BloodPressureMeasurement is the measurement characteristic (0x2A35).
	BloodPressureMeasurement = "2a35"

	// HeartRateService is the SIG heart rate service (0x180D).
	HeartRateService = "180d"
	// HeartRateMeasurement is the measurement characteristic (0x2A37).
	HeartRateMeasurement = "2a37"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID. 16-bit assigned
// numbers advertised in 128-bit form carry this suffix.
const sigBaseSuffix = "00001000800000805f9b34fb"

// Descriptor maps each recognized service UUID to its single measurement
// characteristic UUID. Keys and values are normalized (lowercase, short form).
type Descriptor map[string]string

// Known returns the descriptor for the vitals this pipeline reads.
func Known() Descriptor {
	return Descriptor{
		BloodPressureService: BloodPressureMeasurement,
		HeartRateService:     HeartRateMeasurement,
	}
}

// Services returns the recognized service UUIDs in deterministic order,
// suitable for scan and discovery filters.
func (d Descriptor) Services() []string {
	out := make([]string, 0, len(d))
	for svc := range d {
		out = append(out, svc)
	}
	sort.Strings(out)
	return out
}

// Characteristic returns the measurement characteristic for a service.
func (d Descriptor) Characteristic(service string) (string, bool) {
	c, ok := d[NormalizeUUID(service)]
	return c, ok
}

// Match returns the recognized subset of an advertised service list,
// normalized and in deterministic order. An empty result means the
// advertisement is not a candidate.
func (d Descriptor) Match(advertised []string) []string {
	var out []string
	for _, svc := range advertised {
		n := NormalizeUUID(svc)
		if _, ok := d[n]; ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// NormalizeUUID converts a UUID string to the internal comparison format:
// lowercase, no dashes, no 0x prefix. 128-bit UUIDs on the SIG base are
// reduced to their 16-bit short form ("0000180d-0000-1000-..." -> "180d").
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
	u = strings.TrimPrefix(u, "0x")
	if len(u) == 32 && strings.HasSuffix(u, sigBaseSuffix) && strings.HasPrefix(u, "0000") {
		return u[4:8]
	}
	return u
}

// NormalizeUUIDs normalizes a slice of UUID strings.
func NormalizeUUIDs(uuids []string) []string {
	out := make([]string, len(uuids))
	for i, u := range uuids {
		out[i] = NormalizeUUID(u)
	}
	return out
}
