package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/jiandanzhineng/easysmart-tools/pkg/helper"
	"github.com/sirupsen/logrus"
)

// Resolver streams DNS-SD events for one service type until ctx is done.
type Resolver interface {
	Browse(ctx context.Context, service, domain string, entries, removed chan<- *zeroconf.ServiceEntry) error
}

type zeroconfResolver struct{}

func (zeroconfResolver) Browse(ctx context.Context, service, domain string, entries, removed chan<- *zeroconf.ServiceEntry) error {
	return zeroconf.Browse(ctx, service, domain, entries, removed)
}

// Browser collects the services announced on the local network.
type Browser struct {
	resolver Resolver
	domain   string
	logger   *logrus.Entry
}

// BrowserOption customizes a Browser.
type BrowserOption func(*Browser)

// WithResolver replaces the multicast resolver.
func WithResolver(r Resolver) BrowserOption {
	return func(b *Browser) { b.resolver = r }
}

// WithDomain sets the browsing domain. Default "local.".
func WithDomain(domain string) BrowserOption {
	return func(b *Browser) { b.domain = domain }
}

// WithBrowserLogger sets the log entry used by the browser.
func WithBrowserLogger(l *logrus.Entry) BrowserOption {
	return func(b *Browser) { b.logger = l }
}

func NewBrowser(opts ...BrowserOption) *Browser {
	b := &Browser{
		resolver: zeroconfResolver{},
		domain:   "local.",
		logger:   logrus.WithField("component", "mdns-browser"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Browse listens for every type in types for window, then stops all
// listeners and returns what was seen, keyed by full instance name. It fails
// only when no listener could run at all.
func (b *Browser) Browse(ctx context.Context, types []string, window time.Duration) (map[string]*Service, error) {
	if len(types) == 0 {
		return nil, errors.New("no service types to browse")
	}

	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	reg := newRegistry(b.logger)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []error
	)
	for _, serviceType := range types {
		helper.Go(&wg, b.logger, "listener:"+serviceType, func() {
			if err := b.listen(ctx, serviceType, reg); err != nil {
				mu.Lock()
				failed = append(failed, fmt.Errorf("%s: %w", serviceType, err))
				mu.Unlock()
			}
		})
	}

	b.logger.WithFields(logrus.Fields{
		"types":  len(types),
		"window": window.String(),
	}).Info("Browsing for services")

	<-ctx.Done()
	wg.Wait()

	services := reg.snapshot()
	if len(failed) == len(types) {
		return services, fmt.Errorf("all listeners failed: %w", errors.Join(failed...))
	}
	for _, err := range failed {
		b.logger.WithError(err).Warn("Listener failed")
	}

	b.logger.WithField("count", len(services)).Info("Browsing finished")
	return services, nil
}

// listen runs one resolver and feeds its events into reg until the resolver
// returns.
func (b *Browser) listen(ctx context.Context, serviceType string, reg *registry) error {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})

	var browseErr error
	go func() {
		defer close(done)
		defer helper.RecoverPanic(b.logger, "resolver:"+serviceType)
		browseErr = b.resolver.Browse(ctx, serviceType, b.domain, entries, removed)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			if svc := serviceFromEntry(entry, serviceType, b.domain); svc != nil {
				reg.upsert(svc)
			}
		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			if svc := serviceFromEntry(entry, serviceType, b.domain); svc != nil {
				reg.remove(svc.Name)
			}
		case <-done:
			if browseErr != nil && ctx.Err() == nil {
				return browseErr
			}
			return nil
		}
	}
}

func serviceFromEntry(e *zeroconf.ServiceEntry, serviceType, domain string) *Service {
	if e == nil || e.Instance == "" {
		return nil
	}
	if e.Service != "" {
		serviceType = e.Service
	}
	if e.Domain != "" {
		domain = e.Domain
	}

	svc := &Service{
		Name:       instanceName(e.Instance, serviceType, domain),
		Instance:   e.Instance,
		Type:       trimDot(serviceType),
		Domain:     trimDot(domain),
		Host:       e.HostName,
		Port:       e.Port,
		Properties: decodeTXT(e.Text),
	}
	for _, ip := range e.AddrIPv4 {
		svc.IPv4 = append(svc.IPv4, ip.String())
	}
	for _, ip := range e.AddrIPv6 {
		svc.IPv6 = append(svc.IPv6, ip.String())
	}
	return svc
}

// registry accumulates services for one Browse call.
type registry struct {
	mu       sync.Mutex
	services map[string]*Service
	logger   *logrus.Entry
}

func newRegistry(logger *logrus.Entry) *registry {
	return &registry{
		services: make(map[string]*Service),
		logger:   logger,
	}
}

// upsert stores svc. The last event for a name wins.
func (r *registry) upsert(svc *Service) {
	r.mu.Lock()
	_, existed := r.services[svc.Name]
	r.services[svc.Name] = svc
	r.mu.Unlock()

	msg := "Service added"
	if existed {
		msg = "Service updated"
	}
	r.logger.WithFields(logrus.Fields{
		"name":       svc.Name,
		"host":       svc.Host,
		"addresses":  svc.Addresses(),
		"port":       svc.Port,
		"properties": svc.Properties,
	}).Info(msg)
}

func (r *registry) remove(name string) {
	r.mu.Lock()
	_, existed := r.services[name]
	delete(r.services, name)
	r.mu.Unlock()

	if existed {
		r.logger.WithField("name", name).Info("Service removed")
	}
}

func (r *registry) snapshot() map[string]*Service {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]*Service, len(r.services))
	for k, v := range r.services {
		cp := *v
		out[k] = &cp
	}
	return out
}
