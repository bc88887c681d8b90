package transit

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNetwork matches every *NetworkError with errors.Is.
var ErrNetwork = errors.New("network error")

// NetworkError reports a failed exchange with an agency: transport failure,
// a non-2xx status, an undecodable envelope or an error the agency reported
// in its response body.
type NetworkError struct {
	Op         string
	StatusCode int
	// Reason carries the agency supplied error text or a short description
	// of what was wrong with the response.
	Reason string
	Err    error
}

func (e *NetworkError) Error() string {
	var b strings.Builder
	b.WriteString("network error")
	if e.Op != "" {
		b.WriteString(" during ")
		b.WriteString(e.Op)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ResponseError is returned when the agency answered with success=false.
type ResponseError struct {
	Message string
}

func (e *ResponseError) Error() string {
	return "Response Error: " + e.Message
}

// InvalidTimeFormatError reports a date or time string that does not match
// its fixed agency pattern.
type InvalidTimeFormatError struct {
	Value string
}

func (e *InvalidTimeFormatError) Error() string {
	return "Invalid time format: " + e.Value
}

// AsInvalidTimeFormat unwraps err to an *InvalidTimeFormatError.
func AsInvalidTimeFormat(err error) (*InvalidTimeFormatError, bool) {
	var tf *InvalidTimeFormatError
	if errors.As(err, &tf) {
		return tf, true
	}
	return nil, false
}
