package types

import "errors"

// Validation errors for geometry and object field constraints.
var (
	// ErrBboxInverted is returned when a bbox has top < bottom
	ErrBboxInverted = errors.New("bbox top must not be below bottom")

	// ErrLatOutOfRange is returned when a latitude is outside [-90, 90]
	ErrLatOutOfRange = errors.New("latitude out of range")

	// ErrLonOutOfRange is returned when a longitude is outside [-180, 180]
	ErrLonOutOfRange = errors.New("longitude out of range")

	// ErrZoomOutOfRange is returned when a zoom level is outside [1, 20]
	ErrZoomOutOfRange = errors.New("zoom out of range")

	// ErrTooFewRoutePoints is returned when a line has fewer than two route points
	ErrTooFewRoutePoints = errors.New("line needs at least two route points")

	// ErrDuplicateField is returned when a type declares two fields with the same name
	ErrDuplicateField = errors.New("duplicate field name in type")

	// ErrBadTokens is returned when a pad's capability tokens are empty or collide
	ErrBadTokens = errors.New("pad tokens must be distinct non-empty strings")
)
