package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		wants []string
	}{
		{
			name:  "email",
			in:    "reach me at traveller@example.com please",
			wants: []string{"[REDACTED_EMAIL]"},
		},
		{
			name:  "phone",
			in:    "call +91 98765 43210 when you arrive",
			wants: []string{"[REDACTED_PHONE]"},
		},
		{
			name:  "card",
			in:    "pay with 4111 1111 1111 1111 at the counter",
			wants: []string{"[REDACTED_CARD]"},
		},
		{
			name:  "api key",
			in:    "my key is sk-abcdefghijklmnop1234 do not share",
			wants: []string{"[REDACTED_KEY]"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, changed := RedactPII(tc.in)
			if !changed {
				t.Fatalf("expected change for %q", tc.in)
			}
			for _, want := range tc.wants {
				if !strings.Contains(out, want) {
					t.Errorf("output %q missing %q", out, want)
				}
			}
		})
	}
}

func TestRedactPIICardNotPhone(t *testing.T) {
	out, _ := RedactPII("card 4111-1111-1111-1111")
	if strings.Contains(out, "[REDACTED_PHONE]") {
		t.Errorf("card misclassified as phone: %q", out)
	}
}

func TestRedactPIICleanText(t *testing.T) {
	in := "take me from MG Road to the airport"
	out, changed := RedactPII(in)
	if changed || out != in {
		t.Errorf("clean text altered: %q", out)
	}
}
