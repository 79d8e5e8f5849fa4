package discovery

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalIPv4(t *testing.T) {
	ip, err := LocalIPv4(context.Background())
	if err != nil {
		t.Skipf("no default route: %v", err)
	}

	parsed := net.ParseIP(ip)
	if assert.NotNil(t, parsed) {
		assert.NotNil(t, parsed.To4())
	}
}
