package ping

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/google/uuid"
	"github.com/jiandanzhineng/easysmart-tools/pkg/logger"
)

const (
	DefaultProbeTimeout = 5 * time.Second
	DefaultKeepAlive    = 5 * time.Second

	protocolMQTT311   = 4
	disconnectQuiesce = 250 // ms

	// paho enforces the timeout itself; this only covers a stuck token.
	waitGrace = 500 * time.Millisecond
)

// Outcome classifies one probe attempt.
type Outcome int

const (
	Accepted Outcome = iota
	ConnectFailed
	Rejected
	Timeout
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case ConnectFailed:
		return "connect-failed"
	case Rejected:
		return "rejected"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ExitCode is the process exit status reported for the outcome.
func (o Outcome) ExitCode() int {
	switch o {
	case Accepted:
		return 0
	case ConnectFailed:
		return 1
	case Rejected:
		return 2
	default:
		return 3
	}
}

// Result is the outcome of one probe.
type Result struct {
	Broker     string
	Outcome    Outcome
	ReturnCode byte
	Err        error
	Elapsed    time.Duration
}

// Config for a Prober.
type Config struct {
	Host      string
	Port      int
	Timeout   time.Duration
	KeepAlive time.Duration
}

// Prober attempts a single MQTT connection to a broker.
type Prober struct {
	config Config
	logger *logger.Logger
}

// NewProber creates a prober. Zero durations take the defaults.
func NewProber(config Config, log *logger.Logger) *Prober {
	if config.Timeout <= 0 {
		config.Timeout = DefaultProbeTimeout
	}
	if config.KeepAlive <= 0 {
		config.KeepAlive = DefaultKeepAlive
	}
	if log == nil {
		log = logger.NewLogger("probe")
	}
	return &Prober{config: config, logger: log}
}

// Broker is the tcp URL of the probed broker.
func (p *Prober) Broker() string {
	return "tcp://" + net.JoinHostPort(p.config.Host, strconv.Itoa(p.config.Port))
}

// Probe connects once and waits for CONNACK. It never retries.
func (p *Prober) Probe(ctx context.Context) Result {
	broker := p.Broker()
	clientID := "easysmart-probe-" + uuid.NewString()[:8]

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetKeepAlive(p.config.KeepAlive).
		SetConnectTimeout(p.config.Timeout).
		SetProtocolVersion(protocolMQTT311).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetCleanSession(true)

	p.logger.WithFields(logger.Fields{
		"broker":    broker,
		"client_id": clientID,
		"timeout":   p.config.Timeout.String(),
	}).Debug("Connecting to broker")

	start := time.Now()
	client := mqtt.NewClient(opts)
	token := client.Connect()

	result := Result{Broker: broker}

	timer := time.NewTimer(p.config.Timeout + waitGrace)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		result.Outcome = Timeout
		result.Err = fmt.Errorf("no CONNACK from %s within %s", broker, p.config.Timeout)
		result.Elapsed = time.Since(start)
		return result
	case <-ctx.Done():
		result.Outcome = Timeout
		result.Err = ctx.Err()
		result.Elapsed = time.Since(start)
		return result
	}
	result.Elapsed = time.Since(start)

	if ct, ok := token.(*mqtt.ConnectToken); ok {
		result.ReturnCode = ct.ReturnCode()
	}
	result.Err = token.Error()
	result.Outcome = classify(result.ReturnCode, result.Err)

	if result.Outcome == Accepted {
		client.Disconnect(disconnectQuiesce)
	}

	p.logger.WithFields(logger.Fields{
		"broker":      broker,
		"outcome":     result.Outcome.String(),
		"return_code": result.ReturnCode,
		"elapsed":     result.Elapsed.String(),
	}).Debug("Probe finished")

	return result
}

// classify maps a finished connect attempt to an Outcome.
func classify(rc byte, err error) Outcome {
	if err == nil && rc == packets.Accepted {
		return Accepted
	}
	if rc != packets.Accepted && rc != packets.ErrNetworkError && rc != packets.ErrProtocolViolation {
		return Rejected
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ConnectFailed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}
	return ConnectFailed
}
