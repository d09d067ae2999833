package netdumplings

import "fmt"

// NetDumplingsError is the base error type for every error this module
// returns, matching the source's NetDumplingsError hierarchy.
type NetDumplingsError struct {
	msg string
	err error
}

func (e *NetDumplingsError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s", e.msg, e.err.Error())
	}
	return e.msg
}

func (e *NetDumplingsError) Unwrap() error {
	return e.err
}

func wrapErr(msg string, err error) *NetDumplingsError {
	return &NetDumplingsError{msg: msg, err: err}
}

// InvalidDumplingError is returned when a frame is not valid JSON, lacks
// metadata.chef, or (for the strict Decode path) carries a driver outside
// {packet, interval}.
type InvalidDumplingError struct{ *NetDumplingsError }

func newInvalidDumpling(msg string, err error) *InvalidDumplingError {
	return &InvalidDumplingError{wrapErr(msg, err)}
}

// InvalidDumplingPayloadError is returned when a chef's returned payload is
// not JSON-serializable.
type InvalidDumplingPayloadError struct{ *NetDumplingsError }

func newInvalidPayload(msg string, err error) *InvalidDumplingPayloadError {
	return &InvalidDumplingPayloadError{wrapErr(msg, err)}
}

// ChefError wraps a panic or error raised out of a chef's OnPacket or
// OnInterval handler. It never escapes the Kitchen's dispatch loop.
type ChefError struct {
	*NetDumplingsError
	ChefName string
}

func newChefError(chefName string, err error) *ChefError {
	return &ChefError{
		NetDumplingsError: wrapErr(fmt.Sprintf("chef %s", chefName), err),
		ChefName:          chefName,
	}
}

// TransportBindError is returned when the Hub cannot bind its ingress or
// egress listener.
type TransportBindError struct{ *NetDumplingsError }

func newBindError(msg string, err error) *TransportBindError {
	return &TransportBindError{wrapErr(msg, err)}
}

// TransportConnectError is returned when an Uplink or Eater cannot reach
// the Hub.
type TransportConnectError struct{ *NetDumplingsError }

func newConnectError(msg string, err error) *TransportConnectError {
	return &TransportConnectError{wrapErr(msg, err)}
}

// ConnectionClosedError records a normal or abnormal remote close.
type ConnectionClosedError struct{ *NetDumplingsError }

func newConnectionClosed(msg string, err error) *ConnectionClosedError {
	return &ConnectionClosedError{wrapErr(msg, err)}
}
