package tools

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
)

// ParseIPv4 validates a dotted-quad IPv4 address and returns it normalized.
func ParseIPv4(ipv4 string) (net.IP, error) {
	if strings.Contains(ipv4, "/") {
		return nil, fmt.Errorf("invalid IPv4 address: CIDR notation not allowed, got %s", ipv4)
	}

	ip := net.ParseIP(strings.TrimSpace(ipv4))
	if ip == nil {
		return nil, fmt.Errorf("invalid IPv4 address: %s", ipv4)
	}

	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("not an IPv4 address: %s", ipv4)
	}

	return v4, nil
}

// PrettyPrint writes data to w as indented JSON. A string holding JSON is
// re-indented; any other string is written as is.
func PrettyPrint(w io.Writer, data any) error {
	if data == nil {
		return nil
	}

	var jsonData any
	switch v := data.(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &jsonData); err != nil {
			_, err := fmt.Fprintln(w, v)
			return err
		}
	default:
		jsonData = v
	}

	prettyJSON, err := json.MarshalIndent(jsonData, "", "    ")
	if err != nil {
		return fmt.Errorf("JSON marshaling error: %w", err)
	}

	_, err = fmt.Fprintln(w, string(prettyJSON))
	return err
}
