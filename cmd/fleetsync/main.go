// Command fleetsync connects to a simulation server, mirrors the fleet it
// reports and assigns incoming search tasks to the nearest capable vehicle.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fleetsync/fleetsync/internal/allocator"
	"github.com/fleetsync/fleetsync/internal/client"
	"github.com/fleetsync/fleetsync/internal/config"
	"github.com/fleetsync/fleetsync/internal/influx"
	"github.com/fleetsync/fleetsync/internal/logging"
	intOtel "github.com/fleetsync/fleetsync/internal/otel"
	"github.com/fleetsync/fleetsync/internal/session"
)

// BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	AppName string = "fleetsync"
)

var SessionStartTime = time.Now()

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.BindFlags(fs); err != nil {
		return err
	}

	configDir, _ := fs.GetString("config-dir")
	if err := config.Load(configDir); err != nil {
		return err
	}

	clientCfg, err := config.GetClientConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	clientID := uuid.New()

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}
	logFilePath := logging.LogFilePath(logsDir, AppName, SessionStartTime)
	if _, err := os.Stat(logFilePath); err == nil {
		_ = os.Rename(logFilePath, logFilePath+".old")
	}
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	otelCfg := config.GetOTelConfig()
	provider, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    logFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	var gelfWriter io.Writer
	if config.GetBool("graylog.enabled") {
		w, err := logging.NewGELFWriter(config.GetString("graylog.address"), AppName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: graylog disabled: %v\n", AppName, err)
		} else {
			defer w.Close()
			gelfWriter = w
		}
	}

	// Set once the client exists; the context provider reads it on every record.
	var current atomic.Pointer[client.Client]
	sess := session.NewContext()

	slogManager := logging.NewSlogManager()
	slogManager.Setup(logging.Options{
		Level:    config.GetString("logLevel"),
		File:     io.MultiWriter(os.Stdout, logFile),
		Provider: provider.LoggerProvider(),
		GELF:     gelfWriter,
		Context:  func() []slog.Attr {
			attrs := []slog.Attr{
				slog.String("clientId", clientID.String()),
				slog.String("session", sess.StateName()),
			}
			if c := current.Load(); c != nil {
				attrs = append(attrs, slog.String("connection", c.State().String()))
			}
			return attrs
		},
	})
	logger := slogManager.Logger()
	logger.Info("Starting",
		"version", CurrentVersion,
		"buildDate", BuildDate,
		"logFile", logFilePath,
		"server", clientCfg.Address(),
		"transport", clientCfg.Transport,
	)

	var reporter allocator.Reporter
	if ic := config.GetInfluxConfig(); ic.Enabled {
		m := influx.NewManager(influx.Config{
			URL:        ic.URL,
			Token:      ic.Token,
			Org:        ic.Org,
			Bucket:     ic.Bucket,
			BackupPath: filepath.Join(logsDir, fmt.Sprintf("%s.%s.influx.gz", AppName, SessionStartTime.Format("20060102_150405"))),
		}, logger.With("component", "influx"))

		connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := m.Connect(connectCtx)
		cancel()
		if err != nil {
			logger.Error("InfluxDB disabled", "error", err)
		} else {
			defer m.Close()
			reporter = m
		}
	}

	c, err := client.New(client.Config{
		Address:       clientCfg.Address(),
		RetryInterval: clientCfg.RetryInterval,
		WriteTimeout:  clientCfg.WriteTimeout,
	}, client.Dependencies{
		Dialer:    newDialer(clientCfg),
		Logger:    logger,
		Session:   sess,
		Reporter:  reporter,
		Footprint: footprintLogger{logger: logger.With("component", "footprint")},
	})
	if err != nil {
		return err
	}
	current.Store(c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := c.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := provider.LogMetrics(shutdownCtx, logger); err != nil {
		logger.Warn("Failed to collect metrics", "error", err)
	}
	if err := slogManager.Flush(shutdownCtx); err != nil {
		logger.Warn("Failed to flush logs", "error", err)
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: telemetry shutdown: %v\n", AppName, err)
	}

	if runErr != nil {
		logger.Error("Client stopped", "error", runErr)
		return runErr
	}
	logger.Info("Client stopped")
	return nil
}
