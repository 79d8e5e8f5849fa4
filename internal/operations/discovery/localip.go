package discovery

import (
	"context"
	"fmt"
	"net"
)

// probeTarget is only used to pick the outbound route. UDP connect sends no
// packets.
const probeTarget = "8.8.8.8:80"

// LocalIPv4 returns the address of the interface holding the default route.
func LocalIPv4(ctx context.Context) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", probeTarget)
	if err != nil {
		return "", fmt.Errorf("failed to determine local address: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.To4() == nil {
		return "", fmt.Errorf("no IPv4 address on the default route: %v", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}
