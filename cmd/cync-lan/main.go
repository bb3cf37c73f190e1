// cync-lan-core is a local substitute for the vendor cloud of a mesh of
// smart-lighting devices: it terminates the devices' TLS connections,
// speaks their proprietary framed protocol, tracks device/group state, and
// bridges that state to MQTT with Home Assistant discovery.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/cync-lan-core/internal/bridgepool"
	"github.com/nerrad567/cync-lan-core/internal/cyncerrors"
	"github.com/nerrad567/cync-lan-core/internal/device"
	"github.com/nerrad567/cync-lan-core/internal/infrastructure/config"
	"github.com/nerrad567/cync-lan-core/internal/infrastructure/logging"
	"github.com/nerrad567/cync-lan-core/internal/maintenance"
	"github.com/nerrad567/cync-lan-core/internal/mqttbridge"
	"github.com/nerrad567/cync-lan-core/internal/pipeline"
	"github.com/nerrad567/cync-lan-core/internal/relay"
	"github.com/nerrad567/cync-lan-core/internal/roster"
	"github.com/nerrad567/cync-lan-core/internal/server"
)

var (
	version = "dev"
	commit  = "unknown"
)

// defaultConfigPath is used when CYNC_LAN_CONFIG is unset.
const defaultConfigPath = "./config.yaml"

// getConfigPath resolves the config file location, allowing CYNC_LAN_CONFIG
// to override the default without a command-line flag.
func getConfigPath() string {
	if p := os.Getenv("CYNC_LAN_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}

func main() {
	fmt.Printf("cync-lan-core %s (%s)\n", version, commit)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cync-lan-core: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration once and then supervises the service, restarting
// the whole stack in place whenever the bridge entity's "restart" button
// fires (§12) instead of exiting the process. It returns when ctx is
// cancelled.
func run(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := logging.New(cfg.Logging)

	for {
		svc, err := start(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("starting services: %w", err)
		}

		select {
		case <-ctx.Done():
			svc.stop()
			return nil
		case err := <-svc.fatal:
			svc.stop()
			return fmt.Errorf("service failed: %w", err)
		case <-svc.restart:
			logger.Info("main: restart requested, re-running startup sequence")
			svc.stop()
		}
	}
}

// services holds every long-lived component started by a single pass of
// the startup sequence, plus the two signals that end that pass: restart
// (the bridge entity's button) and fatal (an unrecoverable component
// error).
type services struct {
	restart chan struct{}
	fatal   chan error

	cancel func()
	pool   *bridgepool.Pool
	maint  *maintenance.Scheduler
	mqtt   *mqttbridge.Client
	bridge *mqttbridge.Bridge
}

func (s *services) stop() {
	s.cancel()
	s.maint.Stop()
	for _, b := range s.pool.All() {
		b.Teardown(cyncerrors.ErrShutdown)
	}
	s.bridge.SetTCPServerRunning(false)
	_ = s.mqtt.Close()
}

// start runs the full startup sequence once: load the roster, build the
// device model and command pipeline, connect MQTT, start the TLS listener
// (or the MITM relay in its place), and launch the maintenance scheduler.
func start(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*services, error) {
	rosterFile, err := roster.Load(cfg.Roster.Path)
	if err != nil {
		return nil, fmt.Errorf("loading roster: %w", err)
	}

	registry := device.NewRegistry()
	endpointsByDevice, err := roster.Seed(registry, rosterFile)
	if err != nil {
		return nil, fmt.Errorf("seeding registry from roster: %w", err)
	}
	endpoints := make(map[[4]byte]uint8, len(endpointsByDevice))
	for deviceID, ep := range endpointsByDevice {
		endpoints[ep] = deviceID
	}

	pool := bridgepool.New()

	pl := pipeline.New(registry, pool)
	pl.SetLogger(logger)

	mqttClient, err := mqttbridge.Connect(cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker: %w", err)
	}

	br := mqttbridge.NewBridge(mqttClient, registry, pl, cfg.MQTT.RetryBufferSize)
	br.SetLogger(logger)
	registry.SetNotifier(br)

	maint := maintenance.New(pool, registry, mqttClient)
	maint.SetLogger(logger)
	br.SetPoolStatsProvider(maint)

	svcCtx, cancel := context.WithCancel(ctx)
	svc := &services{
		restart: make(chan struct{}, 1),
		fatal:   make(chan error, 1),
		cancel:  cancel,
		pool:    pool,
		maint:   maint,
		mqtt:    mqttClient,
		bridge:  br,
	}

	exp := exporter{logger: logger}
	br.SetButtonHandlers(mqttbridge.ButtonHandlers{
		Restart: func() {
			select {
			case svc.restart <- struct{}{}:
			default:
			}
		},
		RequestMeshRefresh: maint.RequestMeshRefresh,
		StartExport:        func() { logButtonErr(logger, "start_export", exp.Start()) },
		SubmitOTP:          func(otp string) { logButtonErr(logger, "submit_otp", exp.SubmitOTP(otp)) },
	})

	if err := br.Start(); err != nil {
		cancel()
		_ = mqttClient.Close()
		return nil, fmt.Errorf("starting mqtt bridge: %w", err)
	}

	srv := server.New(cfg.TCP, cfg.TLS, registry, pool, endpoints)
	srv.SetLogger(logger)

	if cfg.CloudRelay.Enabled {
		rl := relay.New(cfg.CloudRelay, registry, pool, endpoints)
		rl.SetLogger(logger)
		srv.SetConnHandler(rl.HandleConn)
		logger.Info("main: cloud relay mode enabled", "cloud_host", cfg.CloudRelay.CloudHost)
	}

	maint.Start(svcCtx)
	br.SetTCPServerRunning(true)

	go func() {
		if err := srv.Run(svcCtx); err != nil {
			select {
			case svc.fatal <- err:
			default:
			}
		}
	}()

	return svc, nil
}

func logButtonErr(logger *logging.Logger, action string, err error) {
	if err != nil {
		logger.Warn("main: bridge button action failed", "action", action, "error", err)
	}
}

// exporter models the account-export/OTP flow as an external collaborator
// specified only by its interface (§6): this process never runs the export
// itself, it only reports the request.
type exporter struct {
	logger *logging.Logger
}

func (e exporter) Start() error {
	e.logger.Info("main: start_export requested; no exporter is configured")
	return nil
}

func (e exporter) SubmitOTP(otp string) error {
	if otp == "" {
		return cyncerrors.ErrConfigInvalid
	}
	e.logger.Info("main: submit_otp requested; no exporter is configured")
	return nil
}
