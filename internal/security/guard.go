// Package security provides input validation and log redaction: an SSRF
// guard for render targets, proxy URL validation, header validation, and
// credential scrubbing for anything that reaches the logs.
package security

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Target URL validation errors.
var (
	ErrInvalidURL       = errors.New("invalid URL")
	ErrBlockedScheme    = errors.New("URL scheme not allowed")
	ErrPrivateIPBlocked = errors.New("private/internal IP addresses are not allowed")
	ErrLocalhostBlocked = errors.New("localhost URLs are not allowed")
	ErrMetadataBlocked  = errors.New("cloud metadata URLs are not allowed")
)

// allowedSchemes are the only schemes a render target may use.
var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// blockedHosts are hostnames that must never be rendered regardless of
// the private-address setting.
var blockedHosts = map[string]bool{
	"metadata.google.internal": true,
	"metadata":                 true,
	"instance-data":            true,
}

// cloudMetadataIPs are metadata service addresses of the major cloud
// providers. Rendering these would hand instance credentials to callers.
var cloudMetadataIPs = []net.IP{
	net.ParseIP("169.254.169.254"), // AWS, GCP, Azure, DigitalOcean
	net.ParseIP("169.254.170.2"),   // AWS ECS task metadata
	net.ParseIP("100.100.100.200"), // Alibaba Cloud
	net.ParseIP("192.0.0.192"),     // Oracle Cloud IMDS
	net.ParseIP("fd00:ec2::254"),   // AWS IPv6 metadata
	net.ParseIP("fc00:ec2::254"),   // AWS IPv6 metadata (alternate)
}

// ValidateTargetURL checks that a render target is safe to navigate to.
// Cloud metadata endpoints are always blocked. With allowPrivate false it
// additionally blocks loopback, RFC 1918/4193, link-local and unspecified
// addresses, including decimal/octal/hex IP encodings and IPv4-mapped
// IPv6 used to smuggle them past naive checks.
func ValidateTargetURL(rawURL string, allowPrivate bool) error {
	if rawURL == "" {
		return ErrInvalidURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}

	if !allowedSchemes[strings.ToLower(parsed.Scheme)] {
		return ErrBlockedScheme
	}

	hostname := strings.ToLower(parsed.Hostname())
	if blockedHosts[hostname] {
		return ErrMetadataBlocked
	}

	if ip := parseIPLenient(hostname); ip != nil {
		return checkIP(normalizeIPv4Mapped(ip), allowPrivate)
	}

	if !allowPrivate && isLocalhostName(hostname) {
		return ErrLocalhostBlocked
	}

	// Resolve hostnames so DNS names pointing at internal ranges are
	// caught too. Resolution failure is left to the browser to report.
	ips, err := net.LookupIP(hostname)
	if err == nil {
		for _, resolved := range ips {
			if err := checkIP(normalizeIPv4Mapped(resolved), allowPrivate); err != nil {
				return err
			}
		}
	}

	return nil
}

// checkIP applies the address policy to a single resolved IP.
func checkIP(ip net.IP, allowPrivate bool) error {
	if isCloudMetadataIP(ip) {
		return ErrMetadataBlocked
	}
	if allowPrivate {
		return nil
	}
	if isLoopbackIP(ip) {
		return ErrLocalhostBlocked
	}
	if ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return ErrPrivateIPBlocked
	}
	return nil
}

// parseIPLenient parses an IP in the encodings browsers accept but
// net.ParseIP does not: single decimal (2130706433), octal or hex octets
// (0177.0.0.1, 0x7f.0.0.1), and shortened forms (127.1).
func parseIPLenient(hostname string) net.IP {
	if ip := net.ParseIP(hostname); ip != nil {
		return ip
	}

	if num, err := strconv.ParseUint(hostname, 10, 32); err == nil {
		return net.IPv4(byte(num>>24), byte(num>>16), byte(num>>8), byte(num))
	}

	parts := strings.Split(hostname, ".")
	if len(parts) == 4 {
		var octets [4]byte
		for i, part := range parts {
			val, err := parseIntAnyBase(part)
			if err != nil || val > 255 {
				return nil
			}
			octets[i] = byte(val)
		}
		return net.IPv4(octets[0], octets[1], octets[2], octets[3])
	}

	if len(parts) == 2 {
		first, err1 := parseIntAnyBase(parts[0])
		second, err2 := parseIntAnyBase(parts[1])
		if err1 == nil && err2 == nil && first <= 255 && second <= 0xFFFFFF {
			return net.IPv4(byte(first), byte(second>>16), byte(second>>8), byte(second))
		}
	}

	return nil
}

// parseIntAnyBase parses decimal, octal (0-prefixed) or hex (0x-prefixed).
func parseIntAnyBase(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty component")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	if strings.HasPrefix(s, "0") && len(s) > 1 {
		return strconv.ParseUint(s[1:], 8, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

// normalizeIPv4Mapped folds ::ffff:x.x.x.x back to IPv4 so the mapped
// form cannot hide a blocked address.
func normalizeIPv4Mapped(ip net.IP) net.IP {
	if ip4 := ip.To4(); ip4 != nil {
		return ip4
	}
	return ip
}

func isLocalhostName(hostname string) bool {
	switch hostname {
	case "localhost", "localhost.localdomain", "local", "ip6-localhost", "ip6-loopback":
		return true
	}
	return strings.HasSuffix(hostname, ".localhost") || strings.HasPrefix(hostname, "localhost.")
}

// isLoopbackIP covers the whole 127.0.0.0/8 range, not just 127.0.0.1.
func isLoopbackIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		return ip4[0] == 127
	}
	return ip.Equal(net.IPv6loopback)
}

func isCloudMetadataIP(ip net.IP) bool {
	for _, meta := range cloudMetadataIPs {
		if ip.Equal(meta) {
			return true
		}
	}
	return false
}

// Proxy URL validation errors.
var (
	ErrInvalidProxyURL    = errors.New("invalid proxy URL")
	ErrBlockedProxyScheme = errors.New("proxy URL scheme not allowed (must be http, https, socks4, or socks5)")
)

var allowedProxySchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"socks4": true,
	"socks5": true,
}

// ValidateProxyURL validates an upstream proxy URL. Local proxies are a
// normal deployment, so private addresses are always permitted here.
func ValidateProxyURL(proxyURL string) error {
	if proxyURL == "" {
		return nil
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return ErrInvalidProxyURL
	}
	if !allowedProxySchemes[strings.ToLower(parsed.Scheme)] {
		return ErrBlockedProxyScheme
	}
	if parsed.Host == "" {
		return ErrInvalidProxyURL
	}
	return nil
}

// SanitizeCookieDomain rescopes a caller-supplied cookie domain to the
// target host when it does not legitimately cover it, so a render cannot
// plant cookies on unrelated or overly broad domains.
func SanitizeCookieDomain(domain, targetHost string) string {
	if domain == "" {
		return targetHost
	}

	domain = strings.ToLower(strings.TrimPrefix(domain, "."))
	targetHost = strings.ToLower(targetHost)

	if domain == targetHost {
		return domain
	}

	if strings.HasSuffix(targetHost, "."+domain) {
		// Never allow a bare TLD as the cookie domain.
		if strings.Count(domain, ".") < 1 {
			return targetHost
		}
		return domain
	}

	return targetHost
}
