// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/qw-energy/victron-poller/internal/logging"
)

/* =========================
   Types
   ========================= */

type Config struct {
	Device            DeviceConfig `json:"device"`
	MQTT              MQTTConfig   `json:"mqtt"`
	PollIntervalMs    int          `json:"pollIntervalMs"`    // poll cadence, default 10000
	HeartbeatInterval int          `json:"heartbeatInterval"` // seconds between forced republishes
}

type DeviceConfig struct {
	Type      string `json:"type"` // "tcp" | "rtu"
	Host      string `json:"host"`
	Port      int    `json:"port"` // default 502
	SerialDev string `json:"serialDev"`
	Baud      int    `json:"baud"`
	DataBits  int    `json:"dataBits"`
	StopBits  int    `json:"stopBits"`
	Parity    string `json:"parity"`
	TimeoutMs int    `json:"timeoutMs"`
	PVUnitID  int    `json:"pvUnitId"` // unit id for the PV inverter registers
	Debug     bool   `json:"debug"`
}

type MQTTConfig struct {
	BrokerURL   string `json:"brokerUrl"`
	ClientName  string `json:"clientName"`
	TopicPrefix string `json:"topicPrefix"`
}

/* =========================
   Helpers
   ========================= */

// DefaultGXUnitID is the unit id the GX device itself answers on. The PV
// override defaults to it, meaning PV data is served by the GX rather than a
// separately addressed inverter.
const DefaultGXUnitID = 21

func (d DeviceConfig) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

func (d DeviceConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Second
}

/* =========================
   Strict load + validate
   ========================= */

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parse(raw)
}

func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return parse(raw)
}

func parse(raw []byte) (*Config, error) {
	clean := stripJSONComments(raw)

	dec := json.NewDecoder(strings.NewReader(string(clean)))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs multiErr

	/* Device */
	d := &c.Device
	if d.Type == "" {
		d.Type = "tcp"
	}
	switch strings.ToLower(d.Type) {
	case "tcp":
		if strings.TrimSpace(d.Host) == "" {
			errs.add("device.host is required for type=tcp")
		}
		if d.Port == 0 {
			d.Port = 502
		}
	case "rtu":
		if strings.TrimSpace(d.SerialDev) == "" {
			errs.add("device.serialDev is required for type=rtu")
		}
		if d.Baud <= 0 {
			errs.add("device.baud must be > 0 for type=rtu")
		}
		if d.DataBits == 0 {
			d.DataBits = 8
		}
		if d.StopBits == 0 {
			d.StopBits = 1
		}
		if d.Parity == "" {
			d.Parity = "N"
		}
		if !slices.Contains([]string{"N", "E", "O"}, strings.ToUpper(d.Parity)) {
			errs.add("device.parity must be one of N,E,O")
		}
	default:
		errs.add("device.type must be 'tcp' or 'rtu'")
	}
	if d.TimeoutMs <= 0 {
		d.TimeoutMs = 5000
	}
	if d.PVUnitID == 0 {
		d.PVUnitID = DefaultGXUnitID
	}
	// Rejected here, at configuration time, never at poll time.
	if d.PVUnitID < 1 || d.PVUnitID > 247 {
		errs.addf("device.pvUnitId must be 1..247, got %d", d.PVUnitID)
	}

	/* Poll */
	if c.PollIntervalMs == 0 {
		c.PollIntervalMs = 10000
	}
	if c.PollIntervalMs < 0 {
		errs.add("pollIntervalMs must be > 0 (e.g., 10000)")
	}
	if c.HeartbeatInterval < 0 {
		c.HeartbeatInterval = 60
	}
	if c.HeartbeatInterval == 0 {
		logging.Warn("heartbeatInterval=0 configured, heartbeats disabled")
	}

	/* MQTT */
	if strings.TrimSpace(c.MQTT.BrokerURL) == "" {
		errs.add("mqtt.brokerUrl is required")
	}
	if c.MQTT.ClientName == "" {
		c.MQTT.ClientName = "victron-poller"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "victron/" + c.MQTT.ClientName
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

/* =========================
   Comment stripping + utils
   ========================= */

// stripJSONComments removes // and /* */ comments while tracking string
// state, so slashes inside values ("tcp://host:1883") survive untouched.
func stripJSONComments(in []byte) []byte {
	out := make([]byte, 0, len(in))
	inString := false
	escaped := false

	for i := 0; i < len(in); i++ {
		c := in[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(in) && in[i+1] == '/':
			for i < len(in) && in[i] != '\n' && in[i] != '\r' {
				i++
			}
			if i < len(in) {
				out = append(out, in[i]) // keep the line break
			}
		case c == '/' && i+1 < len(in) && in[i+1] == '*':
			i += 2
			for i+1 < len(in) && !(in[i] == '*' && in[i+1] == '/') {
				i++
			}
			i++ // land past the closing slash
		default:
			out = append(out, c)
		}
	}
	return out
}

// small multi-error
type multiErr []string

func (m *multiErr) add(s string)            { *m = append(*m, s) }
func (m *multiErr) addf(f string, a ...any) { *m = append(*m, fmt.Sprintf(f, a...)) }
func (m multiErr) Error() string            { return "validation errors: " + strings.Join(m, "; ") }
