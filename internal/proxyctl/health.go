package proxyctl

import (
	"log/slog"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// ListensOnPort reports whether pid holds a TCP listener on port. Used to
// double-check an adopted worker is actually serving, liveness alone does
// not prove the proxy is up.
func ListensOnPort(pid, port int) bool {
	conns, err := psnet.ConnectionsPid("tcp", int32(pid))
	if err != nil {
		slog.Debug("Failed to list connections for PID", "pid", pid, "error", err)
		return false
	}

	for _, conn := range conns {
		if conn.Status == "LISTEN" && int(conn.Laddr.Port) == port {
			return true
		}
	}
	return false
}
