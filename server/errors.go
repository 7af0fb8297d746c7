package server

import (
	"errors"
	"fmt"

	"github.com/CrimsonAS/aliasbridge/hostapi"
)

var (
	ErrInstanceNotFound    = errors.New("instance not found")
	ErrRequestNotValid     = errors.New("request not valid")
	ErrRequestNotSupported = errors.New("request not supported")
	ErrClientConnected     = errors.New("a client is already connected to this namespace")
	ErrHostStopped         = errors.New("host context stopped")
)

// PostProcessError is logged when a post-processing hook fails. It never
// replaces the result of the request.
type PostProcessError struct {
	Request string
	Err     error
}

func (e *PostProcessError) Error() string {
	return fmt.Sprintf("post-process of %s failed: %s", e.Request, e.Err)
}

func (e *PostProcessError) Unwrap() error {
	return e.Err
}

// Exception kinds reported for server errors.
var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInstanceNotFound, "InstanceNotFoundError"},
	{ErrRequestNotValid, "RequestNotValid"},
	{ErrRequestNotSupported, "RequestNotSupported"},
	{ErrClientConnected, "ClientAlreadyConnected"},
	{ErrHostStopped, "HostStopped"},
}

func errorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return hostapi.ErrorKind(err)
}
