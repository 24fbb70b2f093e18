package tracking

import "errors"

var (
	// ErrNoData means the vehicle has never published. Callers render it as
	// "waiting for signal".
	ErrNoData = errors.New("no data for vehicle")
	// ErrMalformedRecord marks a channel snapshot that could not be decoded.
	ErrMalformedRecord = errors.New("malformed vehicle record")
	ErrInvalidPosition = errors.New("invalid position")
	ErrInvalidVehicle  = errors.New("vehicle id is required")
	ErrAlreadyTracking = errors.New("tracker already running")
)
