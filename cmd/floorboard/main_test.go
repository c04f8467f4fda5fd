package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/floorboard/internal/config"
	"github.com/MarcoPoloResearchLab/floorboard/internal/kvstore"
	"go.uber.org/zap"
)

func TestNewTokenIssuerSignsDeviceTokens(testContext *testing.T) {
	issuer, err := newTokenIssuer(config.AppConfig{
		SigningSecret: "floor-secret",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		testContext.Fatalf("failed to construct token issuer: %v", err)
	}

	token, expiresIn, err := issuer.IssueDeviceToken(context.Background(), "hall-tablet")
	if err != nil {
		testContext.Fatalf("failed to issue token: %v", err)
	}
	if expiresIn != int64(time.Hour.Seconds()) {
		testContext.Fatalf("unexpected expiry %d", expiresIn)
	}

	claims, err := issuer.ParseDeviceToken(token)
	if err != nil {
		testContext.Fatalf("failed to parse token: %v", err)
	}
	if claims.Issuer != tokenIssuer || len(claims.Audience) != 1 || claims.Audience[0] != tokenAudience {
		testContext.Fatalf("unexpected issuer %q or audience %v", claims.Issuer, claims.Audience)
	}
}

func TestNewTokenIssuerRequiresSecret(testContext *testing.T) {
	if _, err := newTokenIssuer(config.AppConfig{TokenTTL: time.Hour}); err == nil {
		testContext.Fatalf("expected error for missing signing secret")
	}
}

func TestOpenKeyValueStoreStopsBadgerGCBeforeClose(testContext *testing.T) {
	store, stopGC, err := openKeyValueStore(context.Background(), config.AppConfig{
		StorageDriver:    kvstore.DriverBadger,
		BadgerDir:        filepath.Join(testContext.TempDir(), "badger"),
		BadgerGCInterval: time.Millisecond,
	}, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open badger store: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	stopGC()
	if err := store.Close(); err != nil {
		testContext.Fatalf("failed to close store: %v", err)
	}
}

func TestOpenKeyValueStoreDefaultsToSQLite(testContext *testing.T) {
	store, stopGC, err := openKeyValueStore(context.Background(), config.AppConfig{
		DatabasePath: filepath.Join(testContext.TempDir(), "floor.db"),
	}, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open sqlite store: %v", err)
	}
	stopGC()

	ctx := context.Background()
	if err := store.Set(ctx, "yakiniku-tables", []byte(`{}`)); err != nil {
		testContext.Fatalf("failed to write: %v", err)
	}
	if value, found, err := store.Get(ctx, "yakiniku-tables"); err != nil || !found || string(value) != `{}` {
		testContext.Fatalf("unexpected read %q found=%v err=%v", value, found, err)
	}
	if err := store.Close(); err != nil {
		testContext.Fatalf("failed to close store: %v", err)
	}
}
