package httpclient

// IsSuccessStatus returns true if the status code indicates success
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsServerError returns true for 5xx responses
func IsServerError(statusCode int) bool {
	return statusCode >= 500
}

// IsRetryableStatus returns true if the status code indicates a transient failure
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRateLimitStatus returns true if the status code indicates rate limiting
func IsRateLimitStatus(statusCode int) bool {
	return statusCode == 429
}
