package external

import "errors"

var (
	// ErrGatewayUnavailable covers network failures, timeouts and non-200 responses.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	// ErrGatewayParse means the feed answered but the body could not be decoded.
	ErrGatewayParse = errors.New("gateway parse error")
)

// GatewayError carries the failure class plus the underlying cause.
type GatewayError struct {
	Kind       error
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	msg := "overpass: " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Is(target error) bool {
	return target == e.Kind
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func unavailable(status int, err error) *GatewayError {
	return &GatewayError{Kind: ErrGatewayUnavailable, StatusCode: status, Err: err}
}

func parseFailure(err error) *GatewayError {
	return &GatewayError{Kind: ErrGatewayParse, StatusCode: 200, Err: err}
}
