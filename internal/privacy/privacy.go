// Package privacy removes connection details and client identifiers from
// text that leaves the process, such as error reports.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

var (
	urlPattern   = regexp.MustCompile(`\b(?:https?|tcp|ssl|mqtts?|wss?)://\S+`)
	mysqlDSN     = regexp.MustCompile(`\b[^\s:@/]+:[^\s@/]*@tcp\([^)\s]*\)/\S*`)
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	ownerPattern = regexp.MustCompile(`\bowner[=:]\s*\S+`)
)

// ScrubMessage anonymizes URLs, mysql DSNs, email addresses and owner
// identifiers in message.
func ScrubMessage(message string) string {
	scrubbed := mysqlDSN.ReplaceAllString(message, "[DSN]")
	scrubbed = urlPattern.ReplaceAllStringFunc(scrubbed, AnonymizeURL)
	scrubbed = emailPattern.ReplaceAllString(scrubbed, "[EMAIL]")
	return ownerPattern.ReplaceAllString(scrubbed, "owner=[OWNER]")
}

// AnonymizeURL replaces rawURL with a stable hash of its scheme, host class
// and port. The same broker always maps to the same token, so reports stay
// groupable without revealing where they came from.
func AnonymizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	parts := []string{u.Scheme, categorizeHost(u.Hostname())}
	if port := u.Port(); port != "" {
		parts = append(parts, "port-"+port)
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("url-%x", hash[:12])
}

// SanitizeURL drops credentials, path and query from rawURL and keeps
// scheme, host and port for display in logs.
func SanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "[invalid-url]"
	}
	return u.Scheme + "://" + u.Host
}

func categorizeHost(host string) string {
	if host == "localhost" {
		return "localhost"
	}
	if ip := net.ParseIP(host); ip != nil {
		switch {
		case ip.IsLoopback():
			return "localhost"
		case ip.IsPrivate(), ip.IsLinkLocalUnicast():
			return "private-ip"
		default:
			return "public-ip"
		}
	}
	if i := strings.LastIndexByte(host, '.'); i >= 0 && i < len(host)-1 {
		return "domain-" + host[i+1:]
	}
	return "unknown-host"
}
