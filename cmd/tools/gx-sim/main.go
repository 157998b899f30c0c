package main

// Modbus TCP slave that answers the poller's register map with plausible
// values, for end-to-end testing without a GX device on the network.
// mbserver keeps one register space for all unit ids, which is fine here:
// the simulated registers don't collide across units.
import (
	"log"
	"os"
	"time"

	"github.com/tbrandon/mbserver"
)

func main() {
	addr := os.Getenv("GX_LISTEN_ADDR")
	if addr == "" {
		addr = ":1502"
	}

	srv := mbserver.NewServer()

	seed := map[uint16]uint16{
		820:  120,    // grid L1 W
		821:  85,     // grid L2 W
		822:  0,      // grid L3 W
		2644: 4998,   // grid frequency, 49.98 Hz
		3:    2305,   // input voltage phase 1, 230.5 V
		4:    2311,   // input voltage phase 2
		5:    2298,   // input voltage phase 3
		817:  430,    // AC consumption L1 W
		818:  210,    // AC consumption L2 W
		819:  180,    // AC consumption L3 W
		840:  483,    // battery voltage, 48.3 V
		841:  0xFF9A, // battery current, -10.2 A as int16
		262:  253,    // battery temperature, 25.3 °C
		843:  87,     // battery SoC %
		1052: 0,      // total PV power, int32 high word
		1053: 3200,   // total PV power, int32 low word
	}
	for reg, val := range seed {
		srv.HoldingRegisters[reg] = val
		srv.InputRegisters[reg] = val
	}

	if err := srv.ListenTCP(addr); err != nil {
		log.Fatalf("ListenTCP: %v", err)
	}
	defer srv.Close()
	log.Printf("GX simulator listening on %s", addr)
	for {
		time.Sleep(1 * time.Second)
	}
}
