// bmcscoutd polls BMC fleets over SNMP and Redfish, reconciles both feeds
// into canonical per-device snapshots and serves them over REST, WebSocket
// and Prometheus exposition.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bmcscout/bmcscout/internal/alerts"
	"github.com/bmcscout/bmcscout/internal/api"
	"github.com/bmcscout/bmcscout/internal/auth"
	"github.com/bmcscout/bmcscout/internal/certcheck"
	"github.com/bmcscout/bmcscout/internal/config"
	"github.com/bmcscout/bmcscout/internal/coordinator"
	"github.com/bmcscout/bmcscout/internal/discovery"
	"github.com/bmcscout/bmcscout/internal/exporter"
	"github.com/bmcscout/bmcscout/internal/history"
	"github.com/bmcscout/bmcscout/internal/manifest"
	"github.com/bmcscout/bmcscout/internal/normalize"
	"github.com/bmcscout/bmcscout/internal/power"
	"github.com/bmcscout/bmcscout/internal/reconcile"
	"github.com/bmcscout/bmcscout/internal/redfish"
	"github.com/bmcscout/bmcscout/internal/snmp"
	"github.com/bmcscout/bmcscout/internal/source"
	"github.com/bmcscout/bmcscout/internal/store"
	"github.com/bmcscout/bmcscout/internal/ws"
)

const (
	discoveryRetryInitial = 5 * time.Second
	discoveryRetryMax     = 5 * time.Minute
	certRecheckInterval   = 1 * time.Hour
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("main: failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}
	slog.Info("main: config loaded",
		"path", *configPath,
		"devices", len(cfg.Devices),
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(cfg.Server.SnapshotTTL)
	go st.Run(ctx)

	alertEngine := alerts.New(cfg.Alerts)

	var (
		histDB     *history.DB
		histWriter *history.Writer
	)
	if cfg.Storage.Backend == "sqlite" {
		histDB, err = history.Open(cfg.Storage.Path, cfg.Storage.Retention)
		if err != nil {
			slog.Error("main: failed to open history database",
				"path", cfg.Storage.Path, "err", err)
			os.Exit(1)
		}
		defer histDB.Close()
		histWriter = history.NewWriter(histDB)
		go histWriter.Run(ctx)
		slog.Info("main: history enabled",
			"path", cfg.Storage.Path, "retention", cfg.Storage.Retention)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(exporter.New(st))
	cycleMetrics := exporter.NewCycleMetrics(reg)

	powerReg := power.NewRegistry()

	var wg sync.WaitGroup
	for _, dev := range cfg.Devices {
		wg.Add(1)
		go func(d config.Device) {
			defer wg.Done()
			runDevice(ctx, d, st, alertEngine, histWriter, cycleMetrics, powerReg)
		}(dev)
	}

	hub := ws.New(st, cfg.Server.BroadcastInterval)
	go hub.Run(ctx)

	// hist must stay a nil interface when history is disabled so the API
	// reports the feature as unavailable instead of calling a nil *DB.
	var hist api.HistoryReader
	if histDB != nil {
		hist = histDB
	}
	protect := auth.APIKeyMiddleware(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
	)

	mux := http.NewServeMux()
	mux.Handle("/api/", protect(api.New(st, alertEngine, hist, powerReg)))
	mux.Handle("/ws/stream", protect(hub))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("main: http server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("main: http server failed", "err", err)
			stop()
		}
	}()

	// Hot reload only logs the change: connection settings are captured when a
	// device loop starts, so a restart is needed to apply them.
	go func() {
		err := config.Watch(ctx, *configPath, cfg, func(ch config.Change) {
			slog.Info("main: config changed on disk, restart to apply",
				"devices", len(ch.Config.Devices),
				"devices_added", ch.AddedDevices,
				"devices_removed", ch.RemovedDevices)
		})
		if err != nil {
			slog.Error("main: config watcher failed", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("main: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("main: http shutdown failed", "err", err)
	}

	wg.Wait()
	slog.Info("main: stopped")
}

// runDevice owns one device end to end: it builds the protocol clients,
// obtains a manifest, then drives poll cycles until ctx is cancelled.
func runDevice(
	ctx context.Context,
	dev config.Device,
	st *store.Store,
	alertEngine *alerts.Engine,
	histWriter *history.Writer,
	metrics *exporter.CycleMetrics,
	powerReg *power.Registry,
) {
	var (
		treePoller  source.Poller
		graphPoller source.Poller
		treeClient  *snmp.Client
		graphClient *redfish.Client
	)

	// Interface fields must stay nil (not typed-nil) when a protocol is off,
	// so each client is assigned only inside its Enabled branch.
	var (
		discTree  discovery.TreeClient
		discGraph source.GraphClient
	)

	if dev.SNMP.Enabled() {
		treeClient = snmp.NewClient(snmp.Config{
			Host:      dev.SNMP.Host,
			Port:      dev.SNMP.Port,
			Community: dev.SNMP.Community(),
			Version:   dev.SNMP.Version,
			Timeout:   dev.SNMP.Timeout,
			Retries:   dev.SNMP.Retries,
		})
		defer treeClient.Close()
		treePoller = source.NewTreePoller(treeClient, dev.SNMP.Timeout)
		discTree = treeClient
	}
	if dev.Redfish.Enabled() {
		graphClient = redfish.NewClient(redfish.Config{
			Host:               dev.Redfish.Host,
			Port:               dev.Redfish.Port,
			Username:           dev.Redfish.Username,
			Password:           dev.Redfish.Password(),
			Timeout:            dev.Redfish.Timeout,
			InsecureSkipVerify: dev.Redfish.InsecureSkipVerify,
			SystemID:           dev.Redfish.SystemID,
			ManagerID:          dev.Redfish.ManagerID,
		})
		graphPoller = source.NewGraphPoller(graphClient, dev.Redfish.Timeout)
		discGraph = graphClient
		// Power control rides the same Redfish session; SNMP-only devices
		// stay read-only.
		powerReg.Register(dev.ID, graphClient)
	}

	coord := coordinator.New(coordinator.Config{
		DeviceID:      dev.ID,
		Tree:          treePoller,
		Graph:         graphPoller,
		Engine:        discovery.New(discTree, discGraph, 0),
		Prefs:         reconcile.DefaultPreferences().WithOverrides(dev.Prefer),
		Policy:        normalize.Policy{IntrusionUnknownIsBreach: dev.IntrusionUnknownIsBreach},
		TreeInterval:  dev.SNMP.Interval,
		GraphInterval: dev.Redfish.Interval,
	})

	seeded := false
	if dev.ManifestPath != "" {
		m, err := manifest.Load(dev.ManifestPath)
		switch {
		case err == nil:
			coord.SeedManifest(m)
			seeded = true
			slog.Info("device: manifest loaded from disk",
				"device", dev.ID, "path", dev.ManifestPath, "built_at", m.BuiltAt)
		case errors.Is(err, os.ErrNotExist):
			slog.Info("device: no persisted manifest, discovering",
				"device", dev.ID, "path", dev.ManifestPath)
		default:
			slog.Warn("device: persisted manifest unreadable, discovering",
				"device", dev.ID, "path", dev.ManifestPath, "err", err)
		}
	}
	if !seeded {
		if !discoverWithRetry(ctx, dev, coord) {
			return // ctx cancelled before discovery succeeded
		}
	}

	certStatus := checkCert(ctx, dev)

	runCycle := func() {
		start := time.Now()
		snap, err := coord.Cycle(ctx)
		dur := time.Since(start)
		switch {
		case err == nil:
			metrics.Observe(dev.ID, "ok", dur)
			st.Put(dev.ID, snap, certStatus)
			alertEngine.Evaluate(dev.ID, snap, certStatus)
			if histWriter != nil {
				histWriter.Record(snap)
			}
			slog.Debug("device: cycle ok",
				"device", dev.ID, "sensors", len(snap.Sensors), "duration", dur)
		case errors.Is(err, coordinator.ErrBusy):
			metrics.Observe(dev.ID, "busy", dur)
			slog.Warn("device: cycle skipped, operation in flight", "device", dev.ID)
		default:
			metrics.Observe(dev.ID, "error", dur)
			slog.Error("device: cycle failed", "device", dev.ID, "err", err)
		}
	}

	runCycle()

	scan := time.NewTicker(dev.ScanInterval)
	defer scan.Stop()
	certTick := time.NewTicker(certRecheckInterval)
	defer certTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-scan.C:
			runCycle()
		case <-certTick.C:
			certStatus = checkCert(ctx, dev)
		}
	}
}

// discoverWithRetry runs discovery until it succeeds, backing off between
// attempts. It returns false when ctx is cancelled first.
func discoverWithRetry(ctx context.Context, dev config.Device, coord *coordinator.Coordinator) bool {
	delay := discoveryRetryInitial
	for {
		m, err := coord.Refresh(ctx)
		if err == nil {
			slog.Info("device: discovery complete",
				"device", dev.ID,
				"snmp_categories", len(m.SNMP),
				"redfish_categories", len(m.Redfish))
			if dev.ManifestPath != "" {
				if err := m.Save(dev.ManifestPath); err != nil {
					slog.Warn("device: failed to persist manifest",
						"device", dev.ID, "path", dev.ManifestPath, "err", err)
				}
			}
			return true
		}
		slog.Error("device: discovery failed, retrying",
			"device", dev.ID, "err", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay *= 2
		if delay > discoveryRetryMax {
			delay = discoveryRetryMax
		}
	}
}

// checkCert inspects the device's Redfish TLS certificate. Returns nil when
// the device has no Redfish endpoint; the store then keeps its previous value.
func checkCert(ctx context.Context, dev config.Device) *certcheck.Status {
	if !dev.Redfish.Enabled() {
		return nil
	}
	s := certcheck.Check(ctx, certcheck.Target{
		Host: dev.Redfish.Host,
		Port: dev.Redfish.Port,
	})
	if s.State == "unreachable" {
		slog.Warn("device: certificate check unreachable",
			"device", dev.ID, "host", dev.Redfish.Host)
	}
	return &s
}
