package security

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

var (
	ErrPrivateIP     = errors.New("URL resolves to private IP address")
	ErrUntrustedHost = errors.New("URL host is not trusted")
	ErrInvalidScheme = errors.New("only HTTPS URLs are allowed")
)

// Hosts trusted in strict mode. Gemini file links and shared photos live on
// these.
var allowedHosts = []string{
	"storage.googleapis.com",
	"generativelanguage.googleapis.com",
	"googleusercontent.com",
}

// Ranges an upload URL may not point into, beyond what netip classifies as
// private, loopback or link-local.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
}

var skipValidation = false

// SetSkipValidation turns URL checks off. Tests use it to load from
// httptest servers.
func SetSkipValidation(skip bool) {
	skipValidation = skip
}

// AllowHosts extends the strict-mode allow list, e.g. from configuration.
func AllowHosts(hosts ...string) {
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" && !isAllowedHost(h) {
			allowedHosts = append(allowedHosts, h)
		}
	}
}

// ValidateImageURL rejects non-HTTPS links and hosts resolving to private
// addresses. In strict mode the host must also be on the allow list.
func ValidateImageURL(rawURL string, strictMode bool) error {
	if skipValidation {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return ErrInvalidScheme
	}

	host := parsed.Hostname()
	if strictMode && !isAllowedHost(host) {
		return ErrUntrustedHost
	}
	return checkHost(host)
}

func isAllowedHost(host string) bool {
	host = strings.ToLower(host)
	for _, allowed := range allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// checkHost resolves host and fails if any address is blocked. A lookup
// failure is left for the download itself to report.
func checkHost(host string) error {
	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return ErrPrivateIP
		}
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip); ok && isBlockedAddr(addr) {
			return ErrPrivateIP
		}
	}
	return nil
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
