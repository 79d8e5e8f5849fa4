package discovery

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

type queryFunc func(params *mdns.QueryParam) error

// Lookup resolves a single named instance with a one-shot mDNS query.
type Lookup struct {
	query  queryFunc
	logger *logrus.Entry
}

func NewLookup() *Lookup {
	return &Lookup{
		query:  mdns.Query,
		logger: logrus.WithField("component", "mdns-lookup"),
	}
}

// Find queries serviceType in domain for up to timeout and returns the first
// answer for instance. instance may be the bare instance label or the full
// service instance name.
func (l *Lookup) Find(ctx context.Context, instance, serviceType, domain string, timeout time.Duration) (*Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}

	entries := make(chan *mdns.ServiceEntry, 16)

	var (
		wg    sync.WaitGroup
		found *Service
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			if found != nil || !matchesInstance(entry.Name, instance, serviceType, domain) {
				continue
			}
			found = serviceFromMDNS(entry, serviceType, domain)
		}
	}()

	l.logger.WithFields(logrus.Fields{
		"instance": instance,
		"service":  serviceType,
		"timeout":  timeout.String(),
	}).Debug("Querying service")

	err := l.query(&mdns.QueryParam{
		Service: trimDot(serviceType),
		Domain:  trimDot(domain),
		Timeout: timeout,
		Entries: entries,
		Logger:  log.New(libraryLogWriter{l.logger.WithField("source", "mdns")}, "", 0),
	})
	close(entries)
	wg.Wait()

	if found != nil {
		return found, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mdns query for %s failed: %w", serviceType, err)
	}
	return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, instanceName(instanceLabel(instance, serviceType, domain), serviceType, domain))
}

// libraryLogWriter feeds the mDNS client's log lines into logrus at debug
// level. Query failures are reported by Find itself.
type libraryLogWriter struct {
	entry *logrus.Entry
}

func (w libraryLogWriter) Write(p []byte) (int, error) {
	w.entry.Debug(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func serviceFromMDNS(e *mdns.ServiceEntry, serviceType, domain string) *Service {
	svc := &Service{
		Name:       unescapeName(e.Name),
		Instance:   instanceLabel(unescapeName(e.Name), serviceType, domain),
		Type:       trimDot(serviceType),
		Domain:     trimDot(domain),
		Host:       e.Host,
		Port:       e.Port,
		Properties: decodeTXT(e.InfoFields),
	}
	if e.AddrV4 != nil {
		svc.IPv4 = []string{e.AddrV4.String()}
	}
	if e.AddrV6 != nil {
		svc.IPv6 = []string{e.AddrV6.String()}
	}
	return svc
}

// matchesInstance compares an answered name with the requested instance,
// which may be given with or without its type and domain suffix.
func matchesInstance(name, instance, serviceType, domain string) bool {
	got := instanceLabel(unescapeName(name), serviceType, domain)
	want := instanceLabel(instance, serviceType, domain)
	return strings.EqualFold(got, want)
}

// instanceLabel strips the ".<type>.<domain>." suffix from name, if present.
func instanceLabel(name, serviceType, domain string) string {
	suffix := "." + trimDot(serviceType) + "." + trimDot(domain)
	name = strings.TrimSuffix(name, ".")
	if len(name) > len(suffix) && strings.EqualFold(name[len(name)-len(suffix):], suffix) {
		return name[:len(name)-len(suffix)]
	}
	return name
}

// unescapeName undoes DNS presentation escaping of spaces and dots.
func unescapeName(name string) string {
	if !strings.Contains(name, `\`) {
		return name
	}
	return strings.NewReplacer(`\ `, " ", `\.`, ".", `\032`, " ").Replace(name)
}
