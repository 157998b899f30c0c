package modbus

import (
	"errors"
	"fmt"

	"github.com/goburrow/modbus"
)

// Function selects which of the two register read operations a probe uses.
type Function uint8

const (
	Holding Function = iota // FC3, the documented map
	Input                   // FC4, what some firmware actually answers on
)

func (f Function) String() string {
	if f == Input {
		return "input"
	}
	return "holding"
}

// ExceptionGatewayTarget is the exception code a gateway returns when the
// addressed unit does not respond at all.
const ExceptionGatewayTarget = 10

// ProtocolError is a device-level failure response: the request made it to the
// wire but came back as an exception.
type ProtocolError struct {
	Function  byte
	Exception byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("modbus exception %d (function %d)", e.Exception, e.Function)
}

// GatewayTargetUnreachable reports whether the addressed unit id did not
// answer, as opposed to answering with a complaint about the request.
func (e *ProtocolError) GatewayTargetUnreachable() bool {
	return e.Exception == ExceptionGatewayTarget
}

func wrapError(err error) error {
	var me *modbus.ModbusError
	if errors.As(err, &me) {
		return &ProtocolError{Function: me.FunctionCode, Exception: me.ExceptionCode}
	}
	return err
}

// bytesToWords reassembles the big-endian byte pairs goburrow returns into
// register words.
func bytesToWords(data []byte) []uint16 {
	words := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		words = append(words, uint16(data[i])<<8|uint16(data[i+1]))
	}
	return words
}
