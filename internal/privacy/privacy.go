// Package privacy strips credentials, network locations and detector
// coordinates from text that leaves the node.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Pre-compiled patterns
var (
	urlPattern    = regexp.MustCompile(`\b(?:tcp|ssl|tls|mqtts?|wss?|https?)://\S+`)
	coordPattern  = regexp.MustCompile(`-?\d{1,3}\.\d{3,}\s*,\s*-?\d{1,3}\.\d{3,}`)
	emailPattern  = regexp.MustCompile(`[\w.+\-]+@[\w\-]+\.[\w.\-]+`)
	bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[\w\-.~+/=]+`)
)

// ScrubMessage replaces URLs with anonymized forms and removes coordinate
// pairs, email addresses and bearer tokens.
func ScrubMessage(message string) string {
	scrubbed := urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
	scrubbed = coordPattern.ReplaceAllString(scrubbed, "[COORDINATES]")
	scrubbed = emailPattern.ReplaceAllString(scrubbed, "[EMAIL]")
	scrubbed = bearerPattern.ReplaceAllString(scrubbed, "Bearer [TOKEN]")
	return scrubbed
}

// SanitizeURL keeps scheme, host and port of a URL for display and drops
// credentials, path and query. Unparseable input is replaced entirely.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "[INVALID URL]"
	}
	return u.Scheme + "://" + u.Host
}

// AnonymizeURL maps a URL to a stable hash of its scheme, host category,
// port and path shape, so equal endpoints still correlate in reports.
func AnonymizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		hash := sha256.Sum256([]byte(raw))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	parts := []string{u.Scheme}
	if host := u.Hostname(); host != "" {
		parts = append(parts, categorizeHost(host))
	}
	if port := u.Port(); port != "" {
		parts = append(parts, "port-"+port)
	}
	if p := strings.Trim(u.Path, "/"); p != "" {
		parts = append(parts, fmt.Sprintf("depth-%d", strings.Count(p, "/")+1))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("url-%x", hash[:12])
}

func categorizeHost(host string) string {
	if host == "localhost" {
		return "localhost"
	}
	if ip := net.ParseIP(host); ip != nil {
		switch {
		case ip.IsLoopback():
			return "localhost"
		case ip.IsPrivate():
			return "private-ip"
		default:
			return "public-ip"
		}
	}
	if i := strings.LastIndex(host, "."); i >= 0 && i < len(host)-1 {
		return "domain-" + host[i+1:]
	}
	return "unknown-host"
}
