package fetch

import "strings"

// Error reason codes recorded per source in the run report.
const (
	ReasonSearchAPIMissingKey   = "search_api_missing_key"
	ReasonAuthUnauthorized      = "auth_unauthorized"
	ReasonAccessForbidden       = "access_forbidden"
	ReasonNotFound              = "not_found"
	ReasonDNSError              = "dns_error"
	ReasonTimeout               = "timeout"
	ReasonSSLError              = "ssl_error"
	ReasonConnectionError       = "connection_error"
	ReasonInvalidProvider       = "invalid_provider"
	ReasonInvalidQuerySet       = "invalid_query_set"
	ReasonMissingEntryURLs      = "missing_entry_urls"
	ReasonUnsupportedSourceType = "unsupported_source_type"
	ReasonUnknownError          = "unknown_error"
)

// ClassifyError maps a raw fetch error string to a stable reason code so
// report consumers can tune sources without parsing free-form messages.
func ClassifyError(errorText string) string {
	text := strings.ToLower(strings.TrimSpace(errorText))
	if text == "" {
		return ""
	}

	switch {
	case strings.Contains(text, ReasonSearchAPIMissingKey):
		return ReasonSearchAPIMissingKey
	case strings.Contains(text, "401"), strings.Contains(text, "unauthorized"):
		return ReasonAuthUnauthorized
	case strings.Contains(text, "403"), strings.Contains(text, "forbidden"):
		return ReasonAccessForbidden
	case strings.Contains(text, "404"), strings.Contains(text, "not found"):
		return ReasonNotFound
	case strings.Contains(text, "no such host"), strings.Contains(text, "name or service not known"):
		return ReasonDNSError
	case strings.Contains(text, "timed out"), strings.Contains(text, "timeout"),
		strings.Contains(text, "deadline exceeded"):
		return ReasonTimeout
	case strings.Contains(text, "ssl"), strings.Contains(text, "tls"),
		strings.Contains(text, "handshake"), strings.Contains(text, "certificate"):
		return ReasonSSLError
	case strings.Contains(text, "connection reset"), strings.Contains(text, "connection refused"):
		return ReasonConnectionError
	case strings.Contains(text, "invalid search provider"):
		return ReasonInvalidProvider
	case strings.Contains(text, "invalid query set"):
		return ReasonInvalidQuerySet
	case strings.Contains(text, "missing entry_urls"):
		return ReasonMissingEntryURLs
	case strings.Contains(text, "unsupported source_type"):
		return ReasonUnsupportedSourceType
	}
	return ReasonUnknownError
}
