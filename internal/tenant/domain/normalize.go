package domain

import "strings"

// NormalizeDomain reduces a host or URL to the bare lower-case hostname used
// as the directory key: no scheme, port, path, or trailing slash or dot.
// The result is a fixed point, so normalizing it again returns it unchanged.
func NormalizeDomain(raw string) string {
	host := raw
	for {
		next := normalizeOnce(host)
		if next == host {
			return next
		}
		host = next
	}
}

func normalizeOnce(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(host, "://"); i >= 0 {
		host = strings.TrimSpace(host[i+3:])
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}

	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end >= 0 {
			host = host[1:end]
		}
	} else if i := strings.LastIndex(host, ":"); i >= 0 && strings.Count(host, ":") == 1 {
		host = host[:i]
	}

	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(host), "."))
}
