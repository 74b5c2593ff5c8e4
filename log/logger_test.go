package log

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestResolveLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		want    logrus.Level
		wantErr bool
	}{
		{name: "empty level falls back to default", level: "", want: defaultLevel},
		{name: "debug level", level: "debug", want: logrus.DebugLevel},
		{name: "warning level", level: "warn", want: logrus.WarnLevel},
		{name: "invalid level falls back to default", level: "chatty", want: defaultLevel, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("resolveLogLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolveLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	l := newLogger("info")

	entry, ok := l.(*logrus.Entry)
	if !ok {
		t.Fatalf("expected a *logrus.Entry but got %T", l)
	}

	if entry.Data["service"] != serviceName {
		t.Errorf("expected the service field to be %q but got %v", serviceName, entry.Data["service"])
	}

	if entry.Logger.Level != logrus.InfoLevel {
		t.Errorf("expected info level but got %s", entry.Logger.Level)
	}
}

func TestForComponent(t *testing.T) {
	entry, ok := ForComponent("worker").(*logrus.Entry)
	if !ok {
		t.Fatal("expected a *logrus.Entry")
	}

	if entry.Data["component"] != "worker" {
		t.Errorf("expected component field 'worker' but got %v", entry.Data["component"])
	}
}
