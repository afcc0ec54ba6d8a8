package ns

import (
	"fmt"
	"log/slog"

	"github.com/grandcat/zeroconf"
)

// mDNS service type used by LAN clients to discover the server.
const mdnsService = "_ns-server._tcp"

// Advertiser publishes the server endpoint over multicast DNS.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers the service on the local domain. The returned
// Advertiser keeps the registration alive until Shutdown.
func Advertise(instance string, port int, log *slog.Logger) (*Advertiser, error) {
	srv, err := zeroconf.Register(instance, mdnsService, "local.", port,
		[]string{"version=" + Version}, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	log.Info("mdns service registered", "instance", instance, "type", mdnsService, "port", port)
	return &Advertiser{server: srv}, nil
}

// Shutdown withdraws the registration.
func (a *Advertiser) Shutdown() {
	if a.server != nil {
		a.server.Shutdown()
	}
}
