package main

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"edgescout/internal/config"
	"edgescout/internal/db"
)

func TestOpenStoreDegradesToMemory(t *testing.T) {
	// A plain file where the db directory should go makes MkdirAll fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	var cfg config.Config
	cfg.DB.Path = filepath.Join(blocker, "engine.db")

	store, conn := openStore(cfg, zap.NewNop())
	if store != nil {
		t.Fatal("unreachable store must yield a nil repository")
	}
	if conn != nil {
		t.Fatal("unreachable store must not leak a connection")
	}
}

func TestOpenStoreOpensAndMigrates(t *testing.T) {
	var cfg config.Config
	cfg.DB.Path = filepath.Join(t.TempDir(), "engine.db")

	store, conn := openStore(cfg, zap.NewNop())
	if store == nil || conn == nil {
		t.Fatalf("store = %v, conn = %v", store, conn)
	}
	defer db.Close(conn)
	if err := db.Ping(conn); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
