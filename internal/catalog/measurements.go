// internal/catalog/measurements.go
package catalog

// Register map of a Victron GX system (Cerbo) plus the units hanging off its
// internal bus: the multi (227), the battery monitor (225) and the system
// service (100). Voltage/current registers hold value*10, so scale 0.1
// restores the physical unit.

const (
	// DefaultUnitID is the unit id of the GX device itself.
	DefaultUnitID = 21

	// DefaultBatteryTemperatureC substitutes for an unavailable temperature
	// register, common on installations without a battery temperature sensor.
	DefaultBatteryTemperatureC = 25.0
)

const (
	KeyBatteryVoltage     = "battery_voltage"
	KeyBatteryCurrent     = "battery_current"
	KeyBatteryPower       = "battery_power"
	KeyBatteryTemperature = "battery_temperature"
	KeyBatterySOC         = "battery_soc"
	KeyTotalPVPower       = "total_pv_power"
)

var gridMeasurements = Catalog{
	// Grid power per phase (signed, already Watts)
	{Key: "grid_l1", Name: "Grid L1", Unit: "W", Register: 820, Encoding: Int16, Scale: 1.0, UnitID: 100},
	{Key: "grid_l2", Name: "Grid L2", Unit: "W", Register: 821, Encoding: Int16, Scale: 1.0, UnitID: 100},
	{Key: "grid_l3", Name: "Grid L3", Unit: "W", Register: 822, Encoding: Int16, Scale: 1.0, UnitID: 100},
	{Key: "grid_frequency", Name: "Grid Frequency", Unit: "Hz", Register: 2644, Encoding: Uint16, Scale: 0.01, UnitID: DefaultUnitID, Precision: 2},
	{Key: "input_voltage_phase_1", Name: "Input Voltage Phase 1", Unit: "V", Register: 3, Encoding: Uint16, Scale: 0.1, UnitID: 227},
	{Key: "input_voltage_phase_2", Name: "Input Voltage Phase 2", Unit: "V", Register: 4, Encoding: Uint16, Scale: 0.1, UnitID: 227},
	{Key: "input_voltage_phase_3", Name: "Input Voltage Phase 3", Unit: "V", Register: 5, Encoding: Uint16, Scale: 0.1, UnitID: 227},
	{Key: "ac_consumption_l1", Name: "AC Consumption L1", Unit: "W", Register: 817, Encoding: Uint16, Scale: 1.0, UnitID: 100},
	{Key: "ac_consumption_l2", Name: "AC Consumption L2", Unit: "W", Register: 818, Encoding: Uint16, Scale: 1.0, UnitID: 100},
	{Key: "ac_consumption_l3", Name: "AC Consumption L3", Unit: "W", Register: 819, Encoding: Uint16, Scale: 1.0, UnitID: 100},
}

var batteryMeasurements = Catalog{
	{Key: KeyBatteryVoltage, Name: "Battery Voltage", Unit: "V", Register: 840, Encoding: Uint16, Scale: 0.1, UnitID: 100, Precision: 1},
	{Key: KeyBatteryCurrent, Name: "Battery Current", Unit: "A", Register: 841, Encoding: Int16, Scale: 0.1, UnitID: 100},
	{Key: KeyBatteryTemperature, Name: "Battery Temperature", Unit: "°C", Register: 262, Encoding: Int16, Scale: 0.1, UnitID: 225, Precision: 1,
		Default: defaultValue(DefaultBatteryTemperatureC)},
	// Computed as voltage * current each cycle; register 0 is the reserved
	// marker for values with no direct read.
	{Key: KeyBatteryPower, Name: "Battery Power", Unit: "W", Register: 0, Computed: true},
	{Key: KeyBatterySOC, Name: "Battery State of Charge", Unit: "%", Register: 843, Encoding: Uint16, Scale: 1.0, UnitID: 100},
}

var pvMeasurements = Catalog{
	{Key: KeyTotalPVPower, Name: "Total PV Power", Unit: "W", Register: 1052, Encoding: Int32, Scale: 1.0, UnitID: DefaultUnitID,
		Default: defaultValue(0)},
}

func defaultValue(v float64) *float64 { return &v }
