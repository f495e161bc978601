package masking

import "strings"

const maskToken = "****"

// MaskContact redacts a phone number or email address for logs and audit
// metadata, keeping enough to tell recipients apart.
func MaskContact(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if at := strings.LastIndex(trimmed, "@"); at > 0 {
		local, domain := trimmed[:at], trimmed[at:]
		return local[:1] + maskToken + domain
	}

	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskToken redacts a capability token down to a short prefix.
func MaskToken(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) <= 6 {
		return maskToken
	}
	return trimmed[:6] + maskToken
}
