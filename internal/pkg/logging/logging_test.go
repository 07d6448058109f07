package logging

import (
	"context"
	"testing"

	"github.com/spf13/viper"
)

func TestLoggerFields(t *testing.T) {
	if e := Logger(nil); e == nil {
		t.Fatal("Logger(nil) returned nil")
	}

	ctx := WithCorrelationID(WithTxnID(context.Background(), "txn-1"), "corr-1")
	e := Logger(ctx)

	if got := e.Data["txnid"]; got != "txn-1" {
		t.Errorf("txnid = %v, want txn-1", got)
	}
	if got := e.Data["correlationid"]; got != "corr-1" {
		t.Errorf("correlationid = %v, want corr-1", got)
	}

	if e := Logger(context.Background()); e != Logger(nil) {
		t.Error("a context without IDs should give the global logger")
	}
}

func TestInstanceID(t *testing.T) {
	if InstanceID() == "" {
		t.Error("instance ID not set")
	}
}

func TestConfigureRejectsBadSettings(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"logging.level", "chatty"},
		{"logging.format", "xml"},
	}

	for _, tt := range tests {
		cfg := viper.New()
		cfg.Set("logging.location", "stderr")
		cfg.Set("logging.level", "info")
		cfg.Set("logging.format", "text")
		cfg.Set(tt.key, tt.value)

		if err := Configure(cfg); err == nil {
			t.Errorf("Configure accepted %s=%s", tt.key, tt.value)
		}
	}
}
