// Package privacy removes credentials and identifying hosts from text that
// leaves the process, such as error reports and notification failures.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
)

// urlPattern finds URLs of any scheme, including shoutrrr service URLs
// like telegram://token@telegram.
var urlPattern = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://[^\s"'<>]+`)

// ScrubMessage replaces every URL in message with an anonymized token.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
}

// AnonymizeURL returns a stable token for rawURL that keeps its scheme and
// host category but drops credentials, host names, paths and query strings.
// Equal URLs map to equal tokens so repeated failures still group together.
func AnonymizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		sum := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", sum[:8])
	}

	parts := []string{u.Scheme}
	if host := u.Hostname(); host != "" {
		parts = append(parts, categorizeHost(host))
	}
	if port := u.Port(); port != "" {
		parts = append(parts, "port-"+port)
	}

	sum := sha256.Sum256([]byte(u.Scheme + "|" + u.User.String() + "|" + u.Host + "|" + u.Path))
	return fmt.Sprintf("%s://%s/url-%x", parts[0], strings.Join(parts[1:], "-"), sum[:6])
}

func categorizeHost(host string) string {
	if host == "localhost" {
		return "localhost"
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		switch {
		case addr.IsLoopback():
			return "localhost"
		case addr.IsPrivate(), addr.IsLinkLocalUnicast():
			return "private-ip"
		default:
			return "public-ip"
		}
	}
	if i := strings.LastIndex(host, "."); i >= 0 && i < len(host)-1 {
		return "domain-" + host[i+1:]
	}
	return "host"
}
