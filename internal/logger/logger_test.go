package logger

import (
	"testing"

	"edgescout/internal/config"
)

func TestNewFallsBackOnEmptyConfig(t *testing.T) {
	log, err := New(config.LogConfig{})
	if err != nil {
		t.Fatalf("empty config must build: %v", err)
	}
	if log == nil {
		t.Fatal("nil logger")
	}
	if !log.Core().Enabled(0) { // info
		t.Fatal("default level must be info")
	}
}

func TestNewConsoleEncoding(t *testing.T) {
	log, err := New(config.LogConfig{Level: "debug", Encoding: "console"})
	if err != nil {
		t.Fatalf("console config must build: %v", err)
	}
	if !log.Core().Enabled(-1) { // debug
		t.Fatal("debug level must be enabled")
	}
}
