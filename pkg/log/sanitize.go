package log

import (
	"strings"
)

// SanitizeField checks if the key contains sensitive keywords and sanitizes
// the value. Supplier API credentials (Amadeus client secrets, HotelBeds
// signatures and the like) routinely end up in probe configuration, so the
// sink never sees them in full.
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}

	lowerKey := strings.ToLower(key)

	sensitiveKeywords := []string{
		"password", "passwd", "pwd",
		"api_key", "apikey", "api-key",
		"token", "access_token",
		"secret", "auth", "authorization",
		"credential", "signature",
		"private_key", "privatekey",
		"dsn", "proxy_url",
	}

	isSensitive := false
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			isSensitive = true
			break
		}
	}

	// Special handling for email (booking contact addresses)
	if strings.Contains(lowerKey, "email") || strings.Contains(lowerKey, "mail") {
		return sanitizeEmail(value)
	}

	if isSensitive {
		return sanitizeSecret(value)
	}

	return value
}

// sanitizeSecret masks a secret, keeping only the first and last 4 characters.
func sanitizeSecret(value string) string {
	if len(value) <= 8 {
		// For short strings, mask everything except first and last char
		if len(value) <= 2 {
			return strings.Repeat("*", len(value))
		}
		return string(value[0]) + strings.Repeat("*", len(value)-2) + string(value[len(value)-1])
	}

	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// sanitizeEmail masks an email address, keeping the first 3 characters and the domain.
func sanitizeEmail(value string) string {
	parts := strings.Split(value, "@")
	if len(parts) != 2 {
		// Not an email after all, mask everything
		return strings.Repeat("*", len(value))
	}

	localPart := parts[0]
	domain := parts[1]

	if len(localPart) <= 3 {
		if len(localPart) == 0 {
			return "@" + domain
		}
		return string(localPart[0]) + strings.Repeat("*", len(localPart)-1) + "@" + domain
	}

	return localPart[:3] + "***@" + domain
}
