// Package systemd generates the unit file for running the admission
// gateway as a system service.
package systemd

import "fmt"

// GatewayTemplate returns the systemd unit for the intentgate server.
// Port and config path are baked in at install time.
func GatewayTemplate(port int, configPath string) string {
	configFlag := ""
	if configPath != "" {
		configFlag = " --config " + configPath
	}
	return fmt.Sprintf(`[Unit]
Description=Intentgate admission gateway
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User=intentgate
ExecStart=/usr/local/bin/intentgate serve --port %d%s
Restart=on-failure
RestartSec=2
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ProtectHome=true
ReadWritePaths=/var/lib/intentgate

[Install]
WantedBy=multi-user.target
`, port, configFlag)
}
