package calendar

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotConnected is returned when no calendar account has been stored.
	ErrNotConnected = errors.New("calendar: account not connected")
	// ErrAuthExpired is returned once the token endpoint rejects the refresh
	// token. It persists until the account is re-seeded.
	ErrAuthExpired = errors.New("calendar: authorization expired")
	// ErrRateLimited is returned when Graph answers 429 after one retry.
	ErrRateLimited = errors.New("calendar: rate limited")
	// ErrUpstream matches every *UpstreamError through errors.Is.
	ErrUpstream = errors.New("calendar: upstream error")
	// ErrEventNotFound matches an *UpstreamError with status 404.
	ErrEventNotFound = errors.New("calendar: event not found")
)

// UpstreamError reports a failed call to Graph or the token endpoint. Status
// is zero for transport failures and timeouts.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("calendar: upstream unavailable: %s", e.Message)
	}
	return fmt.Sprintf("calendar: upstream status %d: %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrUpstream) match, and ErrEventNotFound for a 404.
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstream:
		return true
	case ErrEventNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}
