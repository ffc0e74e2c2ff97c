package engine

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAPIKey   = errors.New("missing youtube api key: set GOOGLE_API_KEY environment variable")
	ErrEmptyQuery      = errors.New("channel query is empty")
	ErrInvalidHandle   = errors.New("invalid handle format, it should start with '@'")
	ErrChannelNotFound = errors.New("channel not found or no items returned")
)

// UpstreamError is a failed YouTube Data API call.
// Code is the HTTP status when the API answered, 0 for transport failures.
type UpstreamError struct {
	Op   string
	Code int
	Err  error
}

func (e *UpstreamError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("youtube %s: http %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("youtube %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// CheckError carries the request context of a failed live status check:
// the query as given and, once resolved, the channel id.
type CheckError struct {
	Query     string
	ChannelID string
	Err       error
}

func (e *CheckError) Error() string { return e.Err.Error() }

func (e *CheckError) Unwrap() error { return e.Err }
