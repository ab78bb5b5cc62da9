package reactor

import "errors"

// ErrUnknownParameter is matched by every UnknownParameterError.
var ErrUnknownParameter = errors.New("unknown parameter")

// UnknownParameterError names the parameter that is not in the registry.
type UnknownParameterError struct {
	Name string
}

func (e *UnknownParameterError) Error() string {
	return "Unknown parameter: " + e.Name
}

// Is makes errors.Is(err, ErrUnknownParameter) hold.
func (e *UnknownParameterError) Is(target error) bool {
	return target == ErrUnknownParameter
}
