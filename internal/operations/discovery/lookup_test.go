package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeQuery(answers []*mdns.ServiceEntry, err error, seen **mdns.QueryParam) queryFunc {
	return func(params *mdns.QueryParam) error {
		if seen != nil {
			*seen = params
		}
		for _, a := range answers {
			params.Entries <- a
		}
		return err
	}
}

func newTestLookup(q queryFunc) *Lookup {
	l := NewLookup()
	l.query = q
	l.logger = quietEntry()
	return l
}

func TestLookup_Find(t *testing.T) {
	answers := []*mdns.ServiceEntry{
		{Name: "Other._http._tcp.local.", Host: "other.local.", Port: 8080},
		{
			Name:       "EasySmartSever._http._tcp.local.",
			Host:       "easysmart.local.",
			AddrV4:     net.ParseIP("192.168.1.20"),
			Port:       80,
			InfoFields: []string{"path=/~paulsm/"},
		},
	}

	var params *mdns.QueryParam
	l := newTestLookup(fakeQuery(answers, nil, &params))

	svc, err := l.Find(context.Background(), "EasySmartSever", "_http._tcp", "local.", 3*time.Second)
	require.NoError(t, err)

	assert.Equal(t, "EasySmartSever._http._tcp.local.", svc.Name)
	assert.Equal(t, "EasySmartSever", svc.Instance)
	assert.Equal(t, "easysmart.local.", svc.Host)
	assert.Equal(t, []string{"192.168.1.20"}, svc.IPv4)
	assert.Empty(t, svc.IPv6)
	assert.Equal(t, 80, svc.Port)
	assert.Equal(t, map[string]string{"path": "/~paulsm/"}, svc.Properties)

	require.NotNil(t, params)
	assert.Equal(t, "_http._tcp", params.Service)
	assert.Equal(t, "local", params.Domain)
	assert.Equal(t, 3*time.Second, params.Timeout)
}

func TestLookup_FindByFullName(t *testing.T) {
	answers := []*mdns.ServiceEntry{{Name: `Living\ Room._http._tcp.local.`, Port: 80}}
	l := newTestLookup(fakeQuery(answers, nil, nil))

	svc, err := l.Find(context.Background(), "Living Room._http._tcp.local.", "_http._tcp", "local", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Living Room", svc.Instance)
}

func TestLookup_NotFound(t *testing.T) {
	answers := []*mdns.ServiceEntry{{Name: "Other._http._tcp.local.", Port: 80}}
	l := newTestLookup(fakeQuery(answers, nil, nil))

	_, err := l.Find(context.Background(), "EasySmartSever", "_http._tcp", "local.", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceNotFound)
	assert.Contains(t, err.Error(), "EasySmartSever._http._tcp.local.")
}

func TestLookup_QueryError(t *testing.T) {
	l := newTestLookup(fakeQuery(nil, errors.New("bind failed"), nil))

	_, err := l.Find(context.Background(), "EasySmartSever", "_http._tcp", "local.", time.Second)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrServiceNotFound))
}

func TestLookup_DeadlineShortensTimeout(t *testing.T) {
	var params *mdns.QueryParam
	l := newTestLookup(fakeQuery(nil, nil, &params))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := l.Find(ctx, "EasySmartSever", "_http._tcp", "local.", 10*time.Second)
	assert.ErrorIs(t, err, ErrServiceNotFound)
	require.NotNil(t, params)
	assert.LessOrEqual(t, params.Timeout, 500*time.Millisecond)
}

func TestLookup_CancelledContext(t *testing.T) {
	called := false
	l := newTestLookup(func(*mdns.QueryParam) error {
		called = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Find(ctx, "x", "_http._tcp", "local.", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestLookup_LibraryLogsGoThroughLogrus(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	l := newTestLookup(func(params *mdns.QueryParam) error {
		require.NotNil(t, params.Logger)
		params.Logger.Printf("[INFO] mdns: Closing client %v", "{}")
		return nil
	})
	l.logger = logrus.NewEntry(logger)

	_, err := l.Find(context.Background(), "EasySmartSever", "_http._tcp", "local.", time.Second)
	require.ErrorIs(t, err, ErrServiceNotFound)

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Message == "[INFO] mdns: Closing client {}" {
			found = true
			assert.Equal(t, logrus.DebugLevel, e.Level)
			assert.Equal(t, "mdns", e.Data["source"])
		}
	}
	assert.True(t, found, "mdns log line not routed to logrus")
}

func TestMatchesInstance(t *testing.T) {
	tests := []struct {
		name     string
		instance string
		want     bool
	}{
		{"EasySmartSever._http._tcp.local.", "EasySmartSever", true},
		{"EasySmartSever._http._tcp.local.", "easysmartsever", true},
		{"EasySmartSever._http._tcp.local.", "EasySmartSever._http._tcp.local.", true},
		{"EasySmartSever._http._tcp.local.", "EasySmartSever._http._tcp.local", true},
		{"EasySmartSever2._http._tcp.local.", "EasySmartSever", false},
		{`My\ Lamp._http._tcp.local.`, "My Lamp", true},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.instance, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesInstance(tt.name, tt.instance, "_http._tcp", "local."))
		})
	}
}
