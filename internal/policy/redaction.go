package policy

import "regexp"

var (
	emailPattern      = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	nationalIDPattern = regexp.MustCompile(`\b\d-\d{4}-\d{5}-\d{2}-\d\b|\b\d{13}\b`)
	bankAcctPattern   = regexp.MustCompile(`\b\d{3}-\d-\d{5}-\d\b`)
	otpPattern        = regexp.MustCompile(`(?i)(otp|รหัส)\s*[:：]?\s*\d{4,8}\b`)
	phonePattern      = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern       = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// RedactPII masks common high-risk PII patterns, including the Thai national
// id and bank account layouts callers are asked to read out.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	next = otpPattern.ReplaceAllString(out, "${1} [REDACTED_OTP]")
	changed = changed || next != out
	out = next

	// National id and bank account first: both would otherwise read as a card or phone.
	next = nationalIDPattern.ReplaceAllString(out, "[REDACTED_NATIONAL_ID]")
	changed = changed || next != out
	out = next

	next = bankAcctPattern.ReplaceAllString(out, "[REDACTED_BANK_ACCOUNT]")
	changed = changed || next != out
	out = next

	// Run card redaction before phone to avoid card numbers being classified as phone.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}
