// ABOUTME: mDNS advertisement and lookup of stemdeck time streams
// ABOUTME: Lets visualisers on the local network find a running player
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// ServiceType is the mDNS service players advertise
const ServiceType = "_stemdeck._tcp"

// Config holds discovery configuration
type Config struct {
	Instance string // instance name, usually the host or session title
	Port     int
	Path     string // websocket path advertised in TXT records
	Logger   *zap.Logger
}

// Advertiser announces a time stream until stopped
type Advertiser struct {
	server *mdns.Server
	logger *zap.Logger
}

// Instance describes a discovered player
type Instance struct {
	Name string
	Host string
	Port int
	Path string
}

// URL returns the websocket URL of the instance
func (i Instance) URL() string {
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(i.Host, fmt.Sprint(i.Port)), i.Path)
}

// Advertise starts announcing the service described by cfg
func Advertise(cfg Config) (*Advertiser, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}

	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		cfg.Instance,
		ServiceType,
		"",
		"",
		cfg.Port,
		ips,
		[]string{"path=" + cfg.Path},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns server: %w", err)
	}

	logger.Info("advertising time stream",
		zap.String("instance", cfg.Instance),
		zap.Int("port", cfg.Port),
		zap.String("service", ServiceType))

	return &Advertiser{server: server, logger: logger}, nil
}

// Stop withdraws the advertisement
func (a *Advertiser) Stop() error {
	a.logger.Debug("mdns advertisement stopped")
	return a.server.Shutdown()
}

// Browse queries the local network for players. The query runs for
// timeout, shortened to ctx's deadline when that is sooner.
func Browse(ctx context.Context, timeout time.Duration) ([]Instance, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	collected := make(chan []Instance)
	go func() {
		var found []Instance
		for entry := range entries {
			if inst, ok := fromEntry(entry); ok {
				found = append(found, inst)
			}
		}
		collected <- found
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	err := mdns.Query(params)
	close(entries)
	found := <-collected
	if err != nil {
		return nil, fmt.Errorf("mdns query failed: %w", err)
	}
	return dedupe(found), nil
}

func fromEntry(e *mdns.ServiceEntry) (Instance, bool) {
	if e == nil || e.AddrV4 == nil || !strings.Contains(e.Name, ServiceType) {
		return Instance{}, false
	}
	inst := Instance{
		Name: strings.TrimSuffix(e.Name, "."+ServiceType+".local."),
		Host: e.AddrV4.String(),
		Port: e.Port,
		Path: "/ws",
	}
	for _, field := range e.InfoFields {
		if v, ok := strings.CutPrefix(field, "path="); ok && v != "" {
			inst.Path = v
		}
	}
	return inst, true
}

func dedupe(in []Instance) []Instance {
	seen := make(map[string]bool)
	out := in[:0]
	for _, inst := range in {
		key := inst.URL()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, inst)
	}
	return out
}

func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}
