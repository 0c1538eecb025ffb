package reliability

import "testing"

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
	}
	for _, tc := range cases {
		if got := IsRetryableHTTPStatus(tc.code); got != tc.want {
			t.Errorf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsRetryableRealtimeCode(t *testing.T) {
	if !IsRetryableRealtimeCode("rate_limit_exceeded") {
		t.Error("rate_limit_exceeded should be retryable")
	}
	if IsRetryableRealtimeCode("invalid_api_key") {
		t.Error("invalid_api_key should not be retryable")
	}
	if IsRetryableRealtimeCode("") {
		t.Error("empty code should not be retryable")
	}
}
