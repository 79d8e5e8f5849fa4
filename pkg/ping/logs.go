package ping

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// clientLogger adapts a logrus entry to paho's Logger at a fixed level.
type clientLogger struct {
	entry *logrus.Entry
	level logrus.Level
}

func (l clientLogger) Println(v ...interface{}) {
	l.entry.Logln(l.level, v...)
}

func (l clientLogger) Printf(format string, v ...interface{}) {
	l.entry.Logf(l.level, format, v...)
}

// RouteClientLogs sends the MQTT client's internal logging through entry.
// Debug output is only wired when entry's logger is at debug level.
func RouteClientLogs(entry *logrus.Entry) {
	entry = entry.WithField("source", "paho")
	mqtt.CRITICAL = clientLogger{entry, logrus.ErrorLevel}
	// connect failures are reported by Probe itself
	mqtt.ERROR = clientLogger{entry, logrus.DebugLevel}
	mqtt.WARN = clientLogger{entry, logrus.DebugLevel}
	if entry.Logger.IsLevelEnabled(logrus.DebugLevel) {
		mqtt.DEBUG = clientLogger{entry, logrus.TraceLevel}
	}
}
