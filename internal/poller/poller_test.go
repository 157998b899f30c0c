package poller

import (
	"context"
	"maps"
	"testing"

	"github.com/qw-energy/victron-poller/internal/catalog"
	"github.com/qw-energy/victron-poller/internal/modbus"
)

type readKey struct {
	fn   modbus.Function
	addr uint16
	unit uint8
}

// fakeTransport answers from a scripted response table; everything else gets
// an illegal-data-address exception.
type fakeTransport struct {
	responses map[readKey][]uint16
	calls     []readKey
	connects  int
	closes    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responses: make(map[readKey][]uint16)}
}

func (f *fakeTransport) respond(fn modbus.Function, addr uint16, unit uint8, words ...uint16) {
	f.responses[readKey{fn, addr, unit}] = words
}

func (f *fakeTransport) ReadRegisters(_ context.Context, fn modbus.Function, addr, _ uint16, unit uint8) ([]uint16, error) {
	k := readKey{fn, addr, unit}
	f.calls = append(f.calls, k)
	if words, ok := f.responses[k]; ok {
		return words, nil
	}
	return nil, &modbus.ProtocolError{Function: 0x84, Exception: 2}
}

func (f *fakeTransport) Connect() error { f.connects++; return nil }
func (f *fakeTransport) Close() error   { f.closes++; return nil }

func (f *fakeTransport) callsTo(addr uint16) int {
	n := 0
	for _, c := range f.calls {
		if c.addr == addr {
			n++
		}
	}
	return n
}

func testCatalog() catalog.Catalog {
	return catalog.Catalog{
		{Key: "power", Register: 100, Encoding: catalog.Int16, Scale: 1.0, UnitID: 1},
		{Key: "energy", Register: 200, Encoding: catalog.Uint32, Scale: 1.0, UnitID: 1},
	}
}

func TestProbeOrderIsData(t *testing.T) {
	got := candidateProbes(100)
	want := []probe{
		{modbus.Input, 100},
		{modbus.Holding, 100},
		{modbus.Input, 99},
		{modbus.Holding, 99},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d probes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("probe[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	// No address below zero to probe.
	if n := len(candidateProbes(0)); n != 2 {
		t.Fatalf("candidateProbes(0) = %d probes, want 2", n)
	}
}

func TestShiftedAddressFallback(t *testing.T) {
	ft := newFakeTransport()
	// Only the alternate function one address below the documented one answers.
	ft.respond(modbus.Input, 99, 1, 42)
	ft.respond(modbus.Input, 200, 1, 0, 3200)

	p := New(testCatalog(), ft)
	res := p.PollOnce(context.Background())

	if got := res.Snapshot["power"]; got != 42 {
		t.Fatalf("power = %v, want 42", got)
	}
	if res.Shifted["power"] != 99 {
		t.Fatalf("shifted address not flagged: %v", res.Shifted)
	}
	if _, ok := res.Shifted["energy"]; ok {
		t.Fatal("energy served from its base address, must not be flagged")
	}

	// Probes for "power" must have run in declared order up to the success.
	want := []readKey{
		{modbus.Input, 100, 1},
		{modbus.Holding, 100, 1},
		{modbus.Input, 99, 1},
	}
	for i, k := range want {
		if ft.calls[i] != k {
			t.Fatalf("call[%d] = %v, want %v", i, ft.calls[i], k)
		}
	}
}

func TestIdempotentCycle(t *testing.T) {
	ft := newFakeTransport()
	ft.respond(modbus.Input, 100, 1, 0xFF9A) // -102 as int16
	ft.respond(modbus.Input, 200, 1, 1, 0)   // 65536

	p := New(testCatalog(), ft)
	first := p.PollOnce(context.Background())
	second := p.PollOnce(context.Background())

	if !maps.Equal(first.Snapshot, second.Snapshot) {
		t.Fatalf("snapshots differ: %v vs %v", first.Snapshot, second.Snapshot)
	}
	if first.Snapshot["power"] != -102 || first.Snapshot["energy"] != 65536 {
		t.Fatalf("unexpected snapshot %v", first.Snapshot)
	}
}

func TestSuppressionStopsPolling(t *testing.T) {
	ft := newFakeTransport()
	ft.respond(modbus.Input, 200, 1, 0, 1) // keep one measurement healthy

	p := New(testCatalog(), ft)
	for i := 0; i < 12; i++ {
		p.PollOnce(context.Background())
	}

	before := ft.callsTo(100) + ft.callsTo(99)
	if before == 0 {
		t.Fatal("expected probe traffic before suppression")
	}

	res := p.PollOnce(context.Background())
	if after := ft.callsTo(100) + ft.callsTo(99); after != before {
		t.Fatalf("suppressed address still probed: %d -> %d calls", before, after)
	}
	if res.Attempted != 1 {
		t.Fatalf("attempted = %d, want 1 (suppressed one skipped)", res.Attempted)
	}
}

func TestEleventhFailureStaysActive(t *testing.T) {
	ft := newFakeTransport()
	ft.respond(modbus.Input, 200, 1, 0, 1)

	p := New(testCatalog(), ft)
	for i := 0; i < 11; i++ {
		p.PollOnce(context.Background())
	}

	before := ft.callsTo(100)
	p.PollOnce(context.Background())
	if after := ft.callsTo(100); after == before {
		t.Fatal("address suppressed one cycle too early")
	}
}

func TestRecoveryAfterFailures(t *testing.T) {
	ft := newFakeTransport()
	ft.respond(modbus.Input, 200, 1, 0, 1)

	p := New(testCatalog(), ft)
	for i := 0; i < 5; i++ {
		p.PollOnce(context.Background())
	}

	ft.respond(modbus.Input, 100, 1, 7)
	res := p.PollOnce(context.Background())
	if res.Snapshot["power"] != 7 {
		t.Fatalf("power = %v after recovery, want 7", res.Snapshot["power"])
	}

	// The streak restarted from zero: failing again must not suppress for
	// another full threshold.
	delete(ft.responses, readKey{modbus.Input, 100, 1})
	for i := 0; i < 11; i++ {
		p.PollOnce(context.Background())
	}
	before := ft.callsTo(100)
	p.PollOnce(context.Background())
	if ft.callsTo(100) == before {
		t.Fatal("suppressed before the post-recovery threshold")
	}
}

func TestAllFailedCyclesConnection(t *testing.T) {
	ft := newFakeTransport()

	p := New(testCatalog(), ft)
	res := p.PollOnce(context.Background())

	if !res.AllFailed() {
		t.Fatalf("expected total failure, got %+v", res)
	}
	if !res.Reconnected || ft.closes != 1 || ft.connects != 1 {
		t.Fatalf("transport not cycled: closes=%d connects=%d", ft.closes, ft.connects)
	}
}

func TestPartialFailureKeepsConnection(t *testing.T) {
	ft := newFakeTransport()
	ft.respond(modbus.Input, 100, 1, 5)

	p := New(testCatalog(), ft)
	res := p.PollOnce(context.Background())

	if res.AllFailed() || res.Reconnected {
		t.Fatalf("partial failure must not reconnect: %+v", res)
	}
	if ft.closes != 0 || ft.connects != 0 {
		t.Fatal("transport cycled on partial failure")
	}
	if res.Failed != 1 {
		t.Fatalf("failed = %d, want 1", res.Failed)
	}
}

func TestShortResponseDropsValueNotStreak(t *testing.T) {
	ft := newFakeTransport()
	ft.respond(modbus.Input, 100, 1, 5)
	ft.respond(modbus.Input, 200, 1, 9) // one word where the uint32 needs two

	p := New(testCatalog(), ft)
	res := p.PollOnce(context.Background())

	if _, ok := res.Snapshot["energy"]; ok {
		t.Fatal("short response must not produce a value")
	}
	// The probe answered, so this is not a failed address.
	if res.Failed != 0 {
		t.Fatalf("failed = %d, want 0", res.Failed)
	}
	if st := p.tracker.states[200]; st != nil && st.failCount != 0 {
		t.Fatalf("short response bumped the failure streak: %d", st.failCount)
	}
}

func TestEmptyResponseFallsThroughToNextProbe(t *testing.T) {
	ft := newFakeTransport()
	ft.respond(modbus.Input, 100, 1)       // empty word list, not a success
	ft.respond(modbus.Holding, 100, 1, 11) // next candidate answers
	ft.respond(modbus.Input, 200, 1, 0, 1)

	p := New(testCatalog(), ft)
	res := p.PollOnce(context.Background())

	if res.Snapshot["power"] != 11 {
		t.Fatalf("power = %v, want 11 via holding fallback", res.Snapshot["power"])
	}
	if _, ok := res.Shifted["power"]; ok {
		t.Fatal("same-address fallback must not be flagged as shifted")
	}
}

func TestDerivedBatteryPower(t *testing.T) {
	cat, err := catalog.Build(catalog.DefaultUnitID)
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	ft := newFakeTransport()
	ft.respond(modbus.Input, 840, 100, 483)    // 48.3 V
	ft.respond(modbus.Input, 841, 100, 0xFF9A) // -10.2 A

	p := New(cat, ft)
	res := p.PollOnce(context.Background())

	if got := res.Snapshot[catalog.KeyBatteryPower]; got != -493 {
		t.Fatalf("battery power = %v, want round(48.3 * -10.2) = -493", got)
	}
}

func TestDerivedOmittedWhenInputMissing(t *testing.T) {
	cat, _ := catalog.Build(catalog.DefaultUnitID)
	ft := newFakeTransport()
	ft.respond(modbus.Input, 840, 100, 483) // voltage only

	p := New(cat, ft)
	res := p.PollOnce(context.Background())

	if _, ok := res.Snapshot[catalog.KeyBatteryPower]; ok {
		t.Fatal("battery power derived from a single input")
	}
}

func TestDefaultSubstitution(t *testing.T) {
	cat, _ := catalog.Build(catalog.DefaultUnitID)
	ft := newFakeTransport()

	p := New(cat, ft)
	res := p.PollOnce(context.Background())

	if !res.AllFailed() {
		t.Fatalf("expected total failure, got %+v", res)
	}
	if got := res.Snapshot[catalog.KeyTotalPVPower]; got != 0 {
		t.Fatalf("total pv power = %v, want default 0", got)
	}
	if got := res.Snapshot[catalog.KeyBatteryTemperature]; got != catalog.DefaultBatteryTemperatureC {
		t.Fatalf("battery temperature = %v, want default %v", got, catalog.DefaultBatteryTemperatureC)
	}
	// Only declared defaults appear; everything else is absent, never stale.
	if _, ok := res.Snapshot[catalog.KeyBatteryVoltage]; ok {
		t.Fatal("unread measurement present in snapshot")
	}
}
