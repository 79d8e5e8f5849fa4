package template

import "fmt"

// AnnounceUnitTemplate runs the mDNS announcer as a notify service.
// Arguments: description suffix, ExecStart command line.
var AnnounceUnitTemplate = `[Unit]
Description=EasySmart mDNS announcer (%s)
Wants=network-online.target
After=network-online.target

[Service]
Type=notify
ExecStart=%s
DynamicUser=yes
AmbientCapabilities=CAP_NET_BIND_SERVICE
NoNewPrivileges=yes

Restart=on-failure
RestartSec=10

SyslogIdentifier=easysmart-announce

[Install]
WantedBy=multi-user.target
`

// AnnounceUnit renders AnnounceUnitTemplate.
func AnnounceUnit(description, execStart string) string {
	return fmt.Sprintf(AnnounceUnitTemplate, description, execStart)
}
