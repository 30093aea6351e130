package email

import (
	"net/mail"
	"strings"
	"time"
)

// ParseAddress returns the bare address from a header value such as "Jane Doe <jdoe@example.com>".
// Values that aren't RFC 5322 addresses are returned trimmed so callers can decide what to do with them.
func ParseAddress(raw string) string {
	a, err := mail.ParseAddress(raw)
	if err == nil {
		return a.Address
	}

	raw = strings.TrimSpace(raw)
	if i := strings.LastIndex(raw, "<"); i >= 0 && strings.HasSuffix(raw, ">") {
		return strings.TrimSpace(raw[i+1 : len(raw)-1])
	}

	return raw
}

// ParseAddressList splits a comma separated To header and returns the addresses that contain an @.
// Group syntax like "undisclosed-recipients:;" is dropped.
func ParseAddressList(raw string) []string {
	var addrs []string

	for _, part := range strings.Split(raw, ",") {
		a := ParseAddress(part)
		if !strings.Contains(a, "@") {
			continue
		}
		addrs = append(addrs, a)
	}

	return addrs
}

// Domain returns the lower cased part of an address after the last @, or "" when there isn't one
func Domain(addr string) string {
	i := strings.LastIndex(addr, "@")
	if i < 0 {
		return ""
	}
	return strings.ToLower(addr[i+1:])
}

// ParseDate parses an RFC 2822 Date header. Unparsable dates return now.
func ParseDate(raw string, now time.Time) time.Time {
	t, err := mail.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return now
	}
	return t
}
