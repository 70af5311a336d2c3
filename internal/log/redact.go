package log

import "strings"

const redactedValue = "[REDACTED]"

// RedactValue masks a value keyed under a sensitive name before it
// reaches a log line: connection strings and cache URLs can carry
// embedded credentials (spec.md's optstore/optcache wiring both take a
// DSN-shaped connection string).
func RedactValue(value any) any {
	s, ok := value.(string)
	if !ok {
		return redactedValue
	}
	return redactConnectionString(s)
}

// redactConnectionString keeps a DSN's scheme/host/path intact but
// blanks any userinfo password component, so logs stay useful for
// diagnosing connectivity without leaking secrets. A value without a
// "scheme://userinfo@" part is replaced whole by the redaction marker.
func redactConnectionString(s string) string {
	at := strings.Index(s, "@")
	scheme := strings.Index(s, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return redactedValue
	}
	userinfo := s[scheme+3 : at]
	colon := strings.Index(userinfo, ":")
	if colon < 0 {
		return s
	}
	return s[:scheme+3] + userinfo[:colon] + ":" + redactedValue + s[at:]
}

func isSensitiveKey(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	switch normalized {
	case "dsn", "redis_url", "connection_string", "password", "secret", "token":
		return true
	}
	return strings.Contains(normalized, "password") ||
		strings.Contains(normalized, "secret") ||
		strings.Contains(normalized, "token")
}
