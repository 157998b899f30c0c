package modbus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goburrow/modbus"
	"github.com/qw-energy/victron-poller/internal/config"
	"github.com/qw-energy/victron-poller/internal/logging"
)

// Handler is satisfied by both the RTU and TCP goburrow handlers.
type Handler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// Client owns one connection to the GX system and issues single register
// reads against whichever unit id a measurement names.
type Client struct {
	handler Handler
	client  modbus.Client

	// Connection and backoff state
	connOK     bool
	backoff    time.Duration
	backoffMin time.Duration
	backoffMax time.Duration
}

func newClient(handler Handler) *Client {
	return &Client{
		handler:    handler,
		client:     modbus.NewClient(handler),
		connOK:     true,
		backoff:    0, // means "ready to try now"
		backoffMin: 200 * time.Millisecond,
		backoffMax: 5 * time.Second,
	}
}

func NewTCPClient(dev *config.DeviceConfig) *Client {
	handler := modbus.NewTCPClientHandler(dev.Addr())
	handler.Timeout = dev.Timeout()
	if dev.Debug {
		handler.Logger = logging.WrapSlog("device", dev.Addr())
	}
	return newClient(handler)
}

func NewRTUClient(dev *config.DeviceConfig) *Client {
	handler := modbus.NewRTUClientHandler(dev.SerialDev)
	handler.BaudRate = dev.Baud
	handler.DataBits = dev.DataBits
	handler.Parity = dev.Parity
	handler.StopBits = dev.StopBits
	handler.Timeout = dev.Timeout()
	if dev.Debug {
		handler.Logger = logging.WrapSlog("device", dev.SerialDev)
	}
	return newClient(handler)
}

// Connect opens (or reopens) the underlying link immediately, bypassing any
// pending backoff. The poller uses it for its end-of-cycle reconnect.
func (c *Client) Connect() error {
	if err := c.handler.Connect(); err != nil {
		c.bumpBackoff()
		return err
	}
	c.client = modbus.NewClient(c.handler)
	c.connOK = true
	c.backoff = 0
	return nil
}

func (c *Client) Close() error {
	c.connOK = false
	return c.handler.Close()
}

// ReadRegisters reads quantity words starting at addr from the given unit id.
// Exception responses come back as *ProtocolError; transport-level failures
// mark the connection bad so the next call waits out a backoff first.
func (c *Client) ReadRegisters(ctx context.Context, fn Function, addr, quantity uint16, unitID uint8) ([]uint16, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	c.setSlave(unitID)

	var data []byte
	var err error
	switch fn {
	case Input:
		data, err = c.client.ReadInputRegisters(addr, quantity)
	default:
		data, err = c.client.ReadHoldingRegisters(addr, quantity)
	}
	if err != nil {
		if isTransient(err) {
			c.bumpBackoff()
		}
		return nil, wrapError(err)
	}
	return bytesToWords(data), nil
}

func (c *Client) ensureConnected(ctx context.Context) error {
	if c.connOK {
		return nil
	}
	if c.backoff > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff):
		}
	}

	c.handler.Close() // cleanup any stale
	return c.Connect()
}

func (c *Client) bumpBackoff() {
	c.connOK = false
	if c.backoff == 0 {
		c.backoff = c.backoffMin
	} else {
		c.backoff *= 2
		if c.backoff > c.backoffMax {
			c.backoff = c.backoffMax
		}
	}
}

func (c *Client) setSlave(id byte) {
	switch h := c.handler.(type) {
	case *modbus.RTUClientHandler:
		h.SlaveId = id
	case *modbus.TCPClientHandler:
		h.SlaveId = id
	default:
		logging.Error("Unknown Modbus handler type", "type", fmt.Sprintf("%T", h))
	}
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection") ||
		strings.Contains(s, "broken pipe") ||
		strings.Contains(s, "reset") ||
		strings.Contains(s, "closed") ||
		strings.Contains(s, "i/o") ||
		strings.Contains(s, "timeout")
}
