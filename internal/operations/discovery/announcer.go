package discovery

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"
	"github.com/jiandanzhineng/easysmart-tools/pkg/tools"
	"github.com/sirupsen/logrus"
)

// Announcer publishes one service record until shut down.
type Announcer struct {
	config AnnouncerConfig
	logger *logrus.Entry

	ifaces     []net.Interface
	serverOpts []zeroconf.ServerOption

	mu     sync.Mutex
	server *zeroconf.Server
}

// AnnouncerOption customizes an Announcer.
type AnnouncerOption func(*Announcer)

// WithInterfaces limits announcements to ifaces. Default is every multicast
// interface.
func WithInterfaces(ifaces []net.Interface) AnnouncerOption {
	return func(a *Announcer) { a.ifaces = ifaces }
}

// WithServerOptions passes extra options to the zeroconf server.
func WithServerOptions(opts ...zeroconf.ServerOption) AnnouncerOption {
	return func(a *Announcer) { a.serverOpts = append(a.serverOpts, opts...) }
}

// WithAnnouncerLogger sets the log entry used by the announcer.
func WithAnnouncerLogger(l *logrus.Entry) AnnouncerOption {
	return func(a *Announcer) { a.logger = l }
}

// NewAnnouncer validates config and returns an idle announcer. Domain
// defaults to "local." and Host is qualified with it.
func NewAnnouncer(config AnnouncerConfig, opts ...AnnouncerOption) (*Announcer, error) {
	if config.Instance == "" || config.Service == "" {
		return nil, errors.New("instance and service are required")
	}
	if trimDot(config.Host) == "" {
		return nil, errors.New("host is required")
	}
	if config.Port <= 0 || config.Port > 65535 {
		return nil, fmt.Errorf("port out of range: %d", config.Port)
	}
	ip, err := tools.ParseIPv4(config.IP)
	if err != nil {
		return nil, err
	}
	config.IP = ip.String()
	if trimDot(config.Domain) == "" {
		config.Domain = "local."
	}
	config.Host = hostName(config.Host, config.Domain)

	a := &Announcer{
		config: config,
		logger: logrus.WithField("component", "mdns-announcer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Start registers the record. Calling Start on a running announcer is an
// error.
func (a *Announcer) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return errors.New("announcer already started")
	}

	c := a.config
	ttl := c.TTL()
	txt := encodeTXT(c.Properties)

	var opts []zeroconf.ServerOption
	if ttl > 0 {
		opts = append(opts, zeroconf.TTL(ttl))
	}
	opts = append(opts, a.serverOpts...)

	// zeroconf appends the domain to any host not ending with it and
	// expects the domain without dots.
	server, err := zeroconf.RegisterProxy(c.Instance, c.Service, trimDot(c.Domain), c.Port, c.Host, []string{c.IP}, txt, a.ifaces, opts...)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", instanceName(c.Instance, c.Service, c.Domain), err)
	}
	a.server = server

	a.logger.WithFields(logrus.Fields{
		"name": instanceName(c.Instance, c.Service, c.Domain),
		"host": c.Host,
		"ip":   c.IP,
		"port": c.Port,
		"ttl":  ttl,
		"txt":  txt,
	}).Info("✓ Service registered")
	return nil
}

// Shutdown withdraws the record. It is safe to call more than once.
func (a *Announcer) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.logger.Info("Service unregistered")
}

// Config returns the validated configuration.
func (a *Announcer) Config() AnnouncerConfig {
	return a.config
}
