package client

import (
	"errors"

	"github.com/CrimsonAS/aliasbridge/transport"
)

var (
	ErrModuleNotFound = errors.New("module not found")
	ErrNoAttribute    = errors.New("no such attribute")
	ErrEncode         = errors.New("value cannot be sent to the host")
	ErrBatchIntegrity = errors.New("batch result does not match the batched requests")
	ErrNotResolved    = errors.New("batch has not been executed")
)

// Connection errors, as returned by the transport.
var (
	ErrNotConnected           = transport.ErrNotConnected
	ErrDisconnectedDuringCall = transport.ErrDisconnectedDuringCall
	ErrTimeout                = transport.ErrTimeout
)
