package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnnounceUnit(t *testing.T) {
	unit := AnnounceUnit("192.168.1.20", "/usr/local/bin/easysmart announce-ip --ip 192.168.1.20")

	assert.True(t, strings.HasPrefix(unit, "[Unit]\n"))
	assert.Contains(t, unit, "Description=EasySmart mDNS announcer (192.168.1.20)\n")
	assert.Contains(t, unit, "Type=notify\n")
	assert.Contains(t, unit, "ExecStart=/usr/local/bin/easysmart announce-ip --ip 192.168.1.20\n")
	assert.NotContains(t, unit, "%!")
}
