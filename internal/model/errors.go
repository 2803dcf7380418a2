package model

import "fmt"

// Code is a machine-readable error code returned to clients.
type Code string

const (
	CodeInvalidCoordinate  Code = "InvalidCoordinate"
	CodeEmptyRouteRequest  Code = "EmptyRouteRequest"
	CodeUnpairedDelivery   Code = "UnpairedDelivery"
	CodeInvalidVehicleType Code = "InvalidVehicleType"
	CodeInvalidRequest     Code = "InvalidRequest"
	// CodeDriverLocationUnknown means a driver route was requested before
	// the driver reported a position.
	CodeDriverLocationUnknown Code = "DriverLocationUnknown"
)

// Error is a structured engine error. Two errors match under errors.Is when
// their codes are equal, so callers compare against the Err* values below.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidCoordinate  = &Error{Code: CodeInvalidCoordinate, Message: "coordinate out of range"}
	ErrEmptyRouteRequest  = &Error{Code: CodeEmptyRouteRequest, Message: "no stops to optimize"}
	ErrUnpairedDelivery   = &Error{Code: CodeUnpairedDelivery, Message: "delivery has no matching pickup"}
	ErrInvalidVehicleType = &Error{Code: CodeInvalidVehicleType, Message: "unknown vehicle type"}
	ErrInvalidRequest     = &Error{Code: CodeInvalidRequest, Message: "invalid request"}

	ErrDriverLocationUnknown = &Error{Code: CodeDriverLocationUnknown, Message: "driver position unknown"}
)

// Errorf builds an Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
