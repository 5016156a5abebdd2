package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIIThaiIdentifiers(t *testing.T) {
	cases := []struct {
		in     string
		marker string
		secret string
	}{
		{"เลขบัตรประชาชน 1-1020-12345-67-8 ครับ", "[REDACTED_NATIONAL_ID]", "12345"},
		{"เลขบัตร 1102012345678", "[REDACTED_NATIONAL_ID]", "1102012345678"},
		{"โอนเข้าบัญชี 123-4-56789-0 ด่วน", "[REDACTED_BANK_ACCOUNT]", "56789"},
		{"แจ้งรหัส OTP 482913 มาเลย", "[REDACTED_OTP]", "482913"},
		{"โทรกลับ 081-234-5678", "[REDACTED_PHONE]", "5678"},
	}
	for _, tc := range cases {
		out, changed := RedactPII(tc.in)
		if !changed {
			t.Fatalf("RedactPII(%q) changed = false", tc.in)
		}
		if !strings.Contains(out, tc.marker) {
			t.Fatalf("RedactPII(%q) = %q, missing %q", tc.in, out, tc.marker)
		}
		if strings.Contains(out, tc.secret) {
			t.Fatalf("RedactPII(%q) = %q, still contains %q", tc.in, out, tc.secret)
		}
	}
}

func TestRedactPIILeavesPlainTextAlone(t *testing.T) {
	in := "สวัสดีครับ ติดต่อจากธนาคาร"
	out, changed := RedactPII(in)
	if changed || out != in {
		t.Fatalf("RedactPII(%q) = %q, %v", in, out, changed)
	}
}
