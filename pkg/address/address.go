package address

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPort is used when a URL carries no explicit port.
const DefaultPort uint16 = 80

// Parse failure kinds. Match them with errors.Is.
var (
	ErrInvalidFormat = errors.New("invalid address format, expected IP:PORT")
	ErrInvalidOctet  = errors.New("invalid IP address octet")
	ErrInvalidPort   = errors.New("invalid port number")
	ErrUnrecognized  = errors.New("unrecognized address")
)

// ParseError reports why an address string could not be resolved.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse address %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Endpoint is a resolved host and port.
type Endpoint struct {
	Host string
	Port uint16
}

// String returns the endpoint in host:port form, bracketing IPv6 hosts.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// Resolve turns a user supplied address into an Endpoint.
//
// URL parsing is tried first (an http:// scheme is implied when none is
// given) and wins even when the input also looks like IP:PORT. Only when it
// fails is the input read as a dotted-quad IPv4 address and a port. No DNS
// lookups are made.
func Resolve(s string) (Endpoint, error) {
	if strings.TrimSpace(s) == "" {
		return Endpoint{}, &ParseError{Input: s, Err: ErrUnrecognized}
	}

	if ep, ok := fromURL(s); ok {
		return ep, nil
	}

	hostPart, portPart, found := strings.Cut(s, ":")
	if !found {
		return Endpoint{}, &ParseError{Input: s, Err: ErrInvalidFormat}
	}

	octets := strings.Split(hostPart, ".")
	if len(octets) != 4 {
		return Endpoint{}, &ParseError{Input: s, Err: ErrInvalidOctet}
	}
	for _, o := range octets {
		if _, err := strconv.ParseUint(o, 10, 8); err != nil {
			return Endpoint{}, &ParseError{Input: s, Err: ErrInvalidOctet}
		}
	}

	port, err := strconv.ParseUint(portPart, 10, 16)
	if err != nil {
		return Endpoint{}, &ParseError{Input: s, Err: ErrInvalidPort}
	}

	return Endpoint{Host: hostPart, Port: uint16(port)}, nil
}

// HasScheme reports whether s already starts with a scheme:// prefix.
func HasScheme(s string) bool {
	i := strings.Index(s, "://")
	if i <= 0 {
		return false
	}
	for _, r := range s[:i] {
		if !isSchemeRune(r) {
			return false
		}
	}
	return true
}

// StripScheme removes a leading scheme:// prefix if there is one.
func StripScheme(s string) string {
	if !HasScheme(s) {
		return s
	}
	return s[strings.Index(s, "://")+3:]
}

// fromURL is the first resolution stage. It rejects hosts and ports that a
// strict URL parser would refuse, which lets malformed IP:PORT input fall
// through to the octet and port checks.
func fromURL(s string) (Endpoint, bool) {
	raw := s
	if !HasScheme(raw) {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, false
	}

	host := u.Hostname()
	if !validHost(host) {
		return Endpoint{}, false
	}

	port := DefaultPort
	if p := u.Port(); p != "" {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Endpoint{}, false
		}
		port = uint16(n)
	}

	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	return Endpoint{Host: host, Port: port}, true
}

func validHost(host string) bool {
	if host == "" {
		return false
	}

	// IPv6 literal, brackets already stripped by Hostname.
	if strings.Contains(host, ":") {
		addr, err := netip.ParseAddr(host)
		return err == nil && addr.Is6()
	}

	labels := strings.Split(host, ".")
	last := labels[len(labels)-1]
	if last == "" && len(labels) > 1 {
		last = labels[len(labels)-2]
	}
	if last != "" && isDigits(last) {
		addr, err := netip.ParseAddr(host)
		return err == nil && addr.Is4()
	}

	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func isSchemeRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
		r == '+' || r == '-' || r == '.'
}
