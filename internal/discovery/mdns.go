// ABOUTME: mDNS discovery of translation bridges on the local network
// ABOUTME: Advertises and browses _evatrad._tcp, turning entries into API base URLs
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service a bridge advertises
const ServiceType = "_evatrad._tcp"

// ErrNotFound is returned when no bridge answers in time
var ErrNotFound = errors.New("no bridge found")

// Config holds discovery configuration
type Config struct {
	// Service overrides ServiceType
	Service string

	// QueryTimeout bounds each mDNS query round (default: 3s)
	QueryTimeout time.Duration
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
	logger  *log.Logger
}

// ServerInfo describes a discovered bridge
type ServerInfo struct {
	Name   string
	Host   string
	Port   int
	Scheme string
	Path   string
}

// BaseURL returns the API root advertised by the bridge
func (s *ServerInfo) BaseURL() string {
	scheme := s.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(s.Host, strconv.Itoa(s.Port)), s.Path)
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Service == "" {
		config.Service = ServiceType
	}
	if config.QueryTimeout == 0 {
		config.QueryTimeout = 3 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
		logger:  log.WithPrefix("discovery"),
	}
}

// Advertisement describes a bridge to publish on the local network
type Advertisement struct {
	Name   string
	Port   int
	Scheme string
	Path   string
}

// Advertise publishes a bridge via mDNS until Stop
func (m *Manager) Advertise(ad Advertisement) error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	txt := []string{}
	if ad.Scheme != "" {
		txt = append(txt, "scheme="+ad.Scheme)
	}
	if ad.Path != "" {
		txt = append(txt, "path="+ad.Path)
	}

	service, err := mdns.NewMDNSService(ad.Name, m.config.Service, "", "", ad.Port, ips, txt)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.logger.Info("Advertising bridge", "name", ad.Name, "port", ad.Port, "type", m.config.Service)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// getLocalIPs returns the non-loopback IPv4 addresses of up interfaces
func getLocalIPs() ([]net.IP, error) {
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
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}

// Browse searches for bridges until Stop
func (m *Manager) Browse() {
	go m.browseLoop()
}

// browseLoop continuously browses for bridges
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		go func() {
			for entry := range entries {
				server := serverFromEntry(entry)
				if server == nil {
					continue
				}
				m.logger.Info("Discovered bridge", "name", server.Name, "url", server.BaseURL())

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := mdns.DefaultParams(m.config.Service)
		params.Timeout = m.config.QueryTimeout
		params.Entries = entries
		params.DisableIPv6 = true

		err := mdns.Query(params)
		close(entries)
		if err != nil {
			m.logger.Debug("mDNS query failed", "err", err)
			select {
			case <-time.After(m.config.QueryTimeout):
			case <-m.ctx.Done():
				return
			}
		}
	}
}

// serverFromEntry converts an mDNS answer. TXT records may carry
// "scheme=https" and "path=/api".
func serverFromEntry(entry *mdns.ServiceEntry) *ServerInfo {
	if entry == nil || entry.Port == 0 {
		return nil
	}
	host := entry.Host
	if entry.AddrV4 != nil {
		host = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		host = entry.AddrV6.String()
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return nil
	}

	server := &ServerInfo{Name: entry.Name, Host: host, Port: entry.Port}
	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "scheme":
			server.Scheme = value
		case "path":
			server.Path = "/" + strings.Trim(value, "/")
			if server.Path == "/" {
				server.Path = ""
			}
		}
	}
	return server
}

// Servers returns the channel of discovered bridges
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Find browses until the first bridge answers or ctx ends
func (m *Manager) Find(ctx context.Context) (*ServerInfo, error) {
	m.Browse()
	select {
	case server := <-m.servers:
		return server, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNotFound, ctx.Err())
	}
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}
