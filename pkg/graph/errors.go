package graph

import (
	"errors"
	"fmt"

	"github.com/Ramsey-B/clover/pkg/httpclient"
)

// Graph error codes the portal reacts to.
const (
	CodeAPITooManyCalls    = 4
	CodeUserTooManyCalls   = 17
	CodePageRateLimit      = 32
	CodeCustomRateLimit    = 613
	CodeInvalidOAuthToken  = 190
	CodePermissionDenied   = 10
	CodeTransport          = -1
	CodeUnreadableResponse = -2
)

// PlatformError is any failure reported by, or while reaching, the messaging platform.
type PlatformError struct {
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode,omitempty"`
	Type       string `json:"type,omitempty"`
	Message    string `json:"message"`
	TraceID    string `json:"fbtrace_id,omitempty"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *PlatformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("platform error %d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("platform error %d: %s", e.Code, e.Message)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// IsRateLimit reports whether the platform throttled the caller.
func (e *PlatformError) IsRateLimit() bool {
	switch e.Code {
	case CodeAPITooManyCalls, CodeUserTooManyCalls, CodePageRateLimit, CodeCustomRateLimit:
		return true
	}
	return httpclient.IsRateLimitStatus(e.StatusCode)
}

// IsAuth reports whether the access token was rejected.
func (e *PlatformError) IsAuth() bool {
	return e.Code == CodeInvalidOAuthToken
}

// IsTransport reports whether the platform could not be reached at all.
func (e *PlatformError) IsTransport() bool {
	return e.Code == CodeTransport
}

// AsPlatformError unwraps err into a PlatformError when possible.
func AsPlatformError(err error) (*PlatformError, bool) {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
