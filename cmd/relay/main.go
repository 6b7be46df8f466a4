package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/martinfeng/kiro-relay/internal/account"
	"github.com/martinfeng/kiro-relay/internal/admin"
	"github.com/martinfeng/kiro-relay/internal/config"
	"github.com/martinfeng/kiro-relay/internal/engine"
	"github.com/martinfeng/kiro-relay/internal/events"
	"github.com/martinfeng/kiro-relay/internal/log"
	"github.com/martinfeng/kiro-relay/internal/pool"
	"github.com/martinfeng/kiro-relay/internal/resolver"
	"github.com/martinfeng/kiro-relay/internal/syncfile"
	"github.com/martinfeng/kiro-relay/internal/translate"
	"github.com/martinfeng/kiro-relay/internal/upstream"
)

var version = "dev"

// defaultMappings seeds the Model Resolver with a family-bucket shape:
// versioned exact names outrank the generic substring buckets they
// belong to.
var defaultMappings = []resolver.Mapping{
	{ExternalPattern: "claude-sonnet-4-5-20250929", InternalID: "CLAUDE_SONNET_4_5", MatchType: resolver.MatchExact, Priority: 100, Enabled: true},
	{ExternalPattern: "claude-opus-4-1-20250805", InternalID: "CLAUDE_OPUS_4_1", MatchType: resolver.MatchExact, Priority: 100, Enabled: true},
	{ExternalPattern: "sonnet", InternalID: "CLAUDE_SONNET_4_5", MatchType: resolver.MatchContains, Priority: 10, Enabled: true},
	{ExternalPattern: "opus", InternalID: "CLAUDE_OPUS_4_1", MatchType: resolver.MatchContains, Priority: 10, Enabled: true},
}

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logHandler := events.NewLogHandler(level, 1000)
	slog.SetDefault(slog.New(logHandler))
	slog.Info("kiro-relay starting", "version", version)

	crypto := account.NewCrypto(cfg.EncryptionKey)
	if _, err := crypto.DeriveKey("kiro-relay"); err != nil {
		slog.Error("key derivation failed", "error", err)
		os.Exit(1)
	}

	bus := events.NewBus(200)
	store := account.NewCredentialStore(crypto)
	p := pool.New(store, bus, selectionPolicy(cfg.SelectionPolicy), cfg.CooldownWindow)

	sync := syncfile.New(cfg.AccountsFilePath, store, p.TrackOrder)
	p.SetSharedMode(true)
	if err := sync.Sync(true); err != nil {
		slog.Warn("initial accounts sync failed", "error", err)
	}

	r, err := resolver.New(defaultMappings)
	if err != nil {
		slog.Error("resolver init failed", "error", err)
		os.Exit(1)
	}

	refresher := account.NewTokenRefresher(account.RefresherConfig{
		SocialTokenURL: os.Getenv("SOCIAL_TOKEN_URL"),
		IDCTokenURL:    os.Getenv("IDC_TOKEN_URL"),
		Timeout:        cfg.RefreshTimeout,
		SafetyCap:      cfg.RefreshSafetyCap,
		SafetyMargin:   cfg.TokenSafetyMargin,
	})

	caller, err := upstream.NewCaller(cfg.Region, cfg.KiroVersion, machineID(), cfg.ProxyURL, cfg.UpstreamTimeout)
	if err != nil {
		slog.Error("upstream transport init failed", "error", err)
		os.Exit(1)
	}

	logs := log.NewRing(2000)
	eng := engine.New(r, p, store, refresher, translate.NewTranslator(), caller, logs, cfg.CompatMode)
	_ = eng // wired for the host process to call Handle per request

	adminSurface := admin.NewSurface(store, p)
	adminAuth := admin.NewAuthenticator(cfg.AdminToken)
	_, _ = adminSurface, adminAuth // exposed for the host's AdminTransport

	stop := make(chan struct{})
	go sync.Run(stop, cfg.SyncInterval, cfg.SyncReadTimeout)
	go p.RunCooldownSweeper(stop, time.Minute)

	slog.Info("kiro-relay ready", "region", cfg.Region, "policy", cfg.SelectionPolicy)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	close(stop)
	slog.Info("kiro-relay shutting down")
}

func selectionPolicy(s string) pool.Policy {
	switch s {
	case "random":
		return pool.PolicyRandom
	case "least-used":
		return pool.PolicyLeastUsed
	default:
		return pool.PolicyRoundRobin
	}
}

func machineID() string {
	if id := os.Getenv("KIRO_MACHINE_ID"); id != "" {
		return id
	}
	if hostname, err := os.Hostname(); err == nil {
		return hostname
	}
	return "unknown"
}
