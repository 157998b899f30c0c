// internal/poller/derived.go
package poller

import (
	"math"

	"github.com/qw-energy/victron-poller/internal/catalog"
)

// applyDerived computes the measurements that have no register of their own.
// Battery power is voltage * current, both already in physical units, rounded
// to the nearest watt. It is emitted only when both inputs were read this
// cycle; a half-derived value would be worse than none.
func (p *Poller) applyDerived(snap Snapshot) {
	v, okV := snap[catalog.KeyBatteryVoltage]
	c, okC := snap[catalog.KeyBatteryCurrent]
	if okV && okC {
		snap[catalog.KeyBatteryPower] = math.Round(v * c)
	}
}

// fillDefaults substitutes declared defaults for measurements absent from the
// snapshot, so those keys are always present downstream, even on a cycle with
// no successful reads.
func (p *Poller) fillDefaults(snap Snapshot) {
	for i := range p.catalog {
		m := &p.catalog[i]
		if m.Default == nil {
			continue
		}
		if _, ok := snap[m.Key]; !ok {
			snap[m.Key] = *m.Default
		}
	}
}
