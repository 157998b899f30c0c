// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/qw-energy/victron-poller/internal/catalog"
	"github.com/qw-energy/victron-poller/internal/logging"
	"github.com/qw-energy/victron-poller/internal/modbus"
)

// Transport abstracts the register protocol client. The poller depends on
// single reads only.
type Transport interface {
	ReadRegisters(ctx context.Context, fn modbus.Function, addr, quantity uint16, unitID uint8) ([]uint16, error)
	Connect() error
	Close() error
}

// Snapshot maps measurement keys to the values decoded or derived in one
// cycle. It is rebuilt from scratch every cycle; a key is present only if it
// was freshly read, derived, or filled from its declared default.
type Snapshot map[string]float64

// ErrAllReadsFailed reports a cycle in which not a single measurement could be
// read. Individual failures never fail a cycle; this does.
var ErrAllReadsFailed = errors.New("all register reads failed")

// Poller runs one best-effort read cycle over the catalog. It owns the
// per-address failure state for the process lifetime.
type Poller struct {
	catalog   catalog.Catalog
	transport Transport
	tracker   *FailureTracker
}

func New(cat catalog.Catalog, transport Transport) *Poller {
	return &Poller{
		catalog:   cat,
		transport: transport,
		tracker:   NewFailureTracker(),
	}
}

// CycleResult is what one poll cycle produced, including the observability
// side channel (shifted addresses, reconnects) that tests assert on.
type CycleResult struct {
	Snapshot    Snapshot
	Shifted     map[string]uint16 // key -> address that actually answered
	Attempted   int               // measurements probed this cycle
	Failed      int               // measurements with no successful probe
	Reconnected bool
}

// AllFailed reports whether every attempted measurement failed this cycle.
func (r CycleResult) AllFailed() bool {
	return r.Attempted > 0 && r.Failed == r.Attempted
}

// probe is one address/function-code candidate. The fallback order is data,
// not control flow, so the tie-break stays auditable.
type probe struct {
	fn   modbus.Function
	addr uint16
}

func (p probe) String() string { return fmt.Sprintf("%s@%d", p.fn, p.addr) }

// candidateProbes lists the read attempts for a base address, in order:
// input and holding at the documented address, then both again one below it.
// The -1 variants exist because some firmware off-by-one's the documented map.
func candidateProbes(base uint16) []probe {
	probes := []probe{
		{modbus.Input, base},
		{modbus.Holding, base},
	}
	if base > 0 {
		probes = append(probes,
			probe{modbus.Input, base - 1},
			probe{modbus.Holding, base - 1},
		)
	}
	return probes
}

// PollOnce performs exactly one poll cycle: every non-suppressed direct
// measurement is probed, decoded on first success, and tracked on total
// failure. When every measurement fails the transport is cycled before
// returning, on the theory that the link itself is dead.
func (p *Poller) PollOnce(ctx context.Context) CycleResult {
	res := CycleResult{
		Snapshot: make(Snapshot, len(p.catalog)),
		Shifted:  make(map[string]uint16),
	}

	for i := range p.catalog {
		m := &p.catalog[i]
		if m.Computed {
			continue // derived later, no direct read
		}
		if p.tracker.Suppressed(m.Register) {
			continue
		}
		res.Attempted++

		if !p.pollMeasurement(ctx, m, &res) {
			res.Failed++
		}
	}

	if res.AllFailed() {
		logging.Warn("every register read failed, cycling the connection")
		p.transport.Close()
		if err := p.transport.Connect(); err != nil {
			logging.Warn("reconnect failed", "error", err)
		}
		res.Reconnected = true
	}

	p.applyDerived(res.Snapshot)
	p.fillDefaults(res.Snapshot)
	return res
}

// pollMeasurement probes the candidates for one measurement and records the
// outcome in the tracker. It returns false when no probe produced a usable
// response.
func (p *Poller) pollMeasurement(ctx context.Context, m *catalog.Measurement, res *CycleResult) bool {
	quantity := m.Encoding.WordCount()

	var words []uint16
	var served *probe
	var probeErrs []string
	gatewaySilent := false

	for _, pr := range candidateProbes(m.Register) {
		w, err := p.transport.ReadRegisters(ctx, pr.fn, pr.addr, quantity, m.UnitID)
		if err != nil {
			var pe *modbus.ProtocolError
			if errors.As(err, &pe) {
				probeErrs = append(probeErrs, fmt.Sprintf("%s:fc=%d ex=%d", pr, pe.Function, pe.Exception))
				if pe.GatewayTargetUnreachable() {
					gatewaySilent = true
				}
			} else {
				probeErrs = append(probeErrs, fmt.Sprintf("%s:%v", pr, err))
			}
			continue
		}
		if len(w) == 0 {
			probeErrs = append(probeErrs, fmt.Sprintf("%s:empty", pr))
			continue
		}
		words = w
		served = &pr
		break
	}

	if served == nil {
		p.recordFailure(m, probeErrs, gatewaySilent)
		return false
	}

	if prior := p.tracker.Success(m.Register); prior > 0 {
		logging.Info("register recovered", "register", m.Register, "key", m.Key, "afterFailures", prior)
	}

	value, err := catalog.Decode(words, m.Encoding, m.Scale)
	if err != nil {
		// A short word list for a 32-bit read; the probe itself answered, so
		// the streak stays reset and only the value is missing this cycle.
		logging.Warn("register decode failed", "register", m.Register, "key", m.Key, "via", served.String(), "error", err)
		return true
	}
	res.Snapshot[m.Key] = value

	if served.addr != m.Register {
		res.Shifted[m.Key] = served.addr
		logging.Info("register served from adjusted address",
			"register", m.Register, "served", served.addr, "via", served.String(),
			"hint", "consider updating the register map")
	}
	return true
}

func (p *Poller) recordFailure(m *catalog.Measurement, probeErrs []string, gatewaySilent bool) {
	out := p.tracker.Fail(m.Register)

	if shouldLogFailure(out.Count) {
		logging.Warn("register read failed",
			"register", m.Register, "key", m.Key, "unit", m.UnitID,
			"attempt", out.Count, "probes", strings.Join(probeErrs, "; "))
		if gatewaySilent {
			logging.Warn("unit did not respond behind gateway",
				"key", m.Key, "unit", m.UnitID,
				"hint", "device may be offline or on a different unit id")
		}
	}
	if out.JustSuppressed {
		logging.Error("register suppressed after repeated failures",
			"register", m.Register, "key", m.Key, "failures", out.Count,
			"hint", "remove or correct the mapping; polling resumes after restart")
	}
	// Installations without a separate inverter commonly misconfigure the PV
	// unit id; point at the fix before suppression silences the register.
	if m.Key == catalog.KeyTotalPVPower && out.Count >= 5 && shouldLogFailure(out.Count) {
		logging.Info("pv register keeps failing",
			"failures", out.Count, "unit", m.UnitID,
			"hint", fmt.Sprintf("if no separate inverter exists, set pvUnitId to %d", catalog.DefaultUnitID))
	}
}
