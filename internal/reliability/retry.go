package reliability

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableRealtimeCode classifies realtime error codes a user could
// recover from by starting a fresh session.
func IsRetryableRealtimeCode(code string) bool {
	switch code {
	case "rate_limit_exceeded", "server_error", "session_expired", "connection_error":
		return true
	default:
		return false
	}
}
