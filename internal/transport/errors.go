package transport

import "errors"

// Sentinel errors an Adapter returns from its operations, letting the
// engine branch with errors.Is instead of matching on strings the way
// the underlying platform's raw error messages would require.

// ErrAlreadyDiscovering is a TransportStateConflict: the platform
// reports a start_discovery call as redundant. The engine resynchronizes
// its is_discovering flag rather than retrying.
var ErrAlreadyDiscovering = errors.New("transport: already discovering")

// ErrAlreadyAdvertising is the advertising analogue of
// ErrAlreadyDiscovering.
var ErrAlreadyAdvertising = errors.New("transport: already advertising")

// ErrUnsupported is a TransportFatal: the underlying radio feature is
// not available on this platform. The engine emits a terminal status
// and stops its timers.
var ErrUnsupported = errors.New("transport: feature unsupported")

// ErrNotConnected is returned by SendPayload when the endpoint is not
// currently connected; the engine never issues sends outside this
// case, but the adapter must guard it too since sends are otherwise
// fire-and-forget.
var ErrNotConnected = errors.New("transport: endpoint not connected")

// IsFatal reports whether err represents a TransportFatal condition.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// IsStateConflict reports whether err represents a
// TransportStateConflict condition that should resynchronize state
// rather than trigger a retry.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrAlreadyDiscovering) || errors.Is(err, ErrAlreadyAdvertising)
}
