package discovery

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrServiceNotFound is returned by Lookup when no instance answers.
var ErrServiceNotFound = errors.New("service not found")

// Service is one resolved DNS-SD service instance.
type Service struct {
	Name       string            `json:"name"`
	Instance   string            `json:"instance"`
	Type       string            `json:"type"`
	Domain     string            `json:"domain"`
	Host       string            `json:"host"`
	IPv4       []string          `json:"ipv4,omitempty"`
	IPv6       []string          `json:"ipv6,omitempty"`
	Port       int               `json:"port"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Addresses returns every address of the service, IPv4 first.
func (s *Service) Addresses() []string {
	out := make([]string, 0, len(s.IPv4)+len(s.IPv6))
	out = append(out, s.IPv4...)
	return append(out, s.IPv6...)
}

// AnnouncerConfig describes the single record an Announcer publishes.
type AnnouncerConfig struct {
	Instance   string
	Service    string
	Domain     string
	Host       string
	Port       int
	IP         string
	Properties map[string]string
	HostTTL    time.Duration
	OtherTTL   time.Duration
}

// TTL is the lifetime applied to every published record: the smaller of the
// host and other TTLs, in whole seconds.
func (c AnnouncerConfig) TTL() uint32 {
	ttl := c.HostTTL
	if c.OtherTTL > 0 && (ttl <= 0 || c.OtherTTL < ttl) {
		ttl = c.OtherTTL
	}
	return uint32(ttl / time.Second)
}

// instanceName is the full DNS-SD name of an instance.
func instanceName(instance, service, domain string) string {
	return fmt.Sprintf("%s.%s.%s.", instance, trimDot(service), trimDot(domain))
}

// hostName qualifies host with domain unless it already ends with it and
// returns it fully qualified: "easysmart" and "easysmart.local" both become
// "easysmart.local.".
func hostName(host, domain string) string {
	h, d := trimDot(host), trimDot(domain)
	if h == "" {
		return ""
	}
	if d == "" {
		d = "local"
	}
	if !strings.HasSuffix(strings.ToLower(h), "."+strings.ToLower(d)) {
		h += "." + d
	}
	return h + "."
}

func trimDot(s string) string {
	return strings.Trim(s, ".")
}

// encodeTXT renders properties as sorted key=value strings.
func encodeTXT(props map[string]string) []string {
	txt := make([]string, 0, len(props))
	for k, v := range props {
		txt = append(txt, k+"="+v)
	}
	sort.Strings(txt)
	return txt
}

// decodeTXT parses key=value strings. A bare key maps to "".
func decodeTXT(txt []string) map[string]string {
	if len(txt) == 0 {
		return nil
	}
	props := make(map[string]string, len(txt))
	for _, entry := range txt {
		if entry == "" {
			continue
		}
		k, v, _ := strings.Cut(entry, "=")
		props[k] = v
	}
	return props
}
