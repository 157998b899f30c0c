// internal/catalog/catalog.go
package catalog

import "fmt"

// Measurement describes one logical value read from the GX system: where it
// lives on the bus and how its raw words become a physical quantity.
type Measurement struct {
	Key       string
	Name      string
	Unit      string
	Register  uint16
	Computed  bool // derived from other measurements, no direct read
	Encoding  Encoding
	Scale     float64
	UnitID    uint8
	Precision int      // suggested display precision, 0 = unset
	Default   *float64 // substituted when the value is absent from a cycle
}

// Catalog is the ordered, immutable set of measurements one deployment polls.
type Catalog []Measurement

// Build resolves the static tables against the configured PV unit id.
// If pvUnitID equals the GX default the PV measurements are taken as declared
// (the GX itself serves them); otherwise they are cloned with the override so
// a separately addressed inverter answers instead.
func Build(pvUnitID uint8) (Catalog, error) {
	if pvUnitID < 1 || pvUnitID > 247 {
		return nil, fmt.Errorf("pv unit id %d outside 1..247", pvUnitID)
	}

	cat := make(Catalog, 0, len(gridMeasurements)+len(batteryMeasurements)+len(pvMeasurements))
	cat = append(cat, gridMeasurements...)
	cat = append(cat, batteryMeasurements...)
	for _, m := range pvMeasurements {
		if pvUnitID != DefaultUnitID {
			m.UnitID = pvUnitID
		}
		cat = append(cat, m)
	}

	seen := make(map[string]struct{}, len(cat))
	for i := range cat {
		m := &cat[i]
		if _, dup := seen[m.Key]; dup {
			return nil, fmt.Errorf("duplicate measurement key %q", m.Key)
		}
		seen[m.Key] = struct{}{}
		if m.Scale == 0 {
			m.Scale = 1.0
		}
		if !m.Computed && m.UnitID == 0 {
			return nil, fmt.Errorf("measurement %q has no unit id", m.Key)
		}
	}
	return cat, nil
}

// Find returns the measurement with the given key, or nil.
func (c Catalog) Find(key string) *Measurement {
	for i := range c {
		if c[i].Key == key {
			return &c[i]
		}
	}
	return nil
}
