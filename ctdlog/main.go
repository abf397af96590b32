// Command ctdlog records an SBE 49 data stream to numbered log files and
// sends averaged samples back over the same serial line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/itohio/goctd/pkg/config"
	"github.com/itohio/goctd/pkg/ctd"
	"github.com/itohio/goctd/pkg/datalog"
	"github.com/itohio/goctd/pkg/recorder"
	"github.com/itohio/goctd/pkg/uart"
)

func main() {
	os.Exit(runMain(os.Args[1:]))
}

// runMain parses args, runs the recorder and returns the exit code. Deferred
// cleanup, including the logger flush, runs on every path.
func runMain(args []string) int {
	fs := flag.NewFlagSet("ctdlog", flag.ContinueOnError)
	var (
		portFlag    = fs.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyUSB0)")
		baudFlag    = fs.Int("b", 0, "Baud rate override")
		configFlag  = fs.String("config", "config.yaml", "Configuration file path")
		mockFlag    = fs.Bool("mock", false, "Use simulated instrument instead of serial port")
		metricsFlag = fs.String("metrics", "", "Metrics listen address override (e.g., :9108)")
		listFlag    = fs.Bool("list", false, "List serial ports and exit")
		debugFlag   = fs.Bool("debug", false, "Enable debug logging")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger, err := newLogger(*debugFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	if *listFlag {
		ports, err := uart.Ports()
		if err != nil {
			logger.Error("Failed to list serial ports", zap.Error(err))
			return 1
		}
		for _, p := range ports {
			fmt.Println(p.Description)
		}
		return 0
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err), zap.String("config", *configFlag))
		return 1
	}

	// Command line overrides, never written back to the file
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *baudFlag != 0 {
		if *baudFlag < config.BaudMin || *baudFlag > config.BaudMax {
			logger.Warn("Baud rate out of range, using default",
				zap.Int("baud", *baudFlag), zap.Int("default", config.BaudDefault))
			*baudFlag = config.BaudDefault
		}
		cfg.Serial.Baud = *baudFlag
	}
	if *metricsFlag != "" {
		cfg.Metrics.Listen = *metricsFlag
	}

	if err := run(cfg, *configFlag, *mockFlag, logger); err != nil {
		logger.Error("Recorder stopped", zap.Error(err))
		return 1
	}
	return 0
}

func newLogger(debug bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if debug {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zcfg.Build()
}

func run(cfg *config.Config, configPath string, mock bool, logger *zap.Logger) error {
	log, err := openLog(cfg, configPath, logger)
	if err != nil {
		return err
	}

	var port uart.Port
	if mock {
		port = uart.NewMock(&cfg.Mock)
		logger.Info("Using simulated instrument", zap.Duration("sampleRate", cfg.Mock.SampleRate))
	} else {
		port, err = uart.Open(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			log.Close()
			return err
		}
		logger.Info("Serial port opened", zap.String("portName", cfg.Serial.Port), zap.Int("baud", cfg.Serial.Baud))
	}

	pipeline := ctd.New(cfg.Pipeline.WindowSize, cfg.Pipeline.BufferCapacity)
	rec := recorder.New(port, log, pipeline, recorder.Options{
		ChunkSize:   cfg.Serial.ChunkSize,
		SyncIdle:    cfg.Log.SyncIdle,
		ReadTimeout: cfg.Serial.ReadTimeout,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if cfg.Metrics.Listen != "" {
		srv = serveMetrics(cfg.Metrics.Listen, rec.Handler(), logger)
	}

	runErr := rec.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error stopping metrics server", zap.Error(err))
		}
	}

	st := rec.Stats()
	logger.Info("Recording finished",
		zap.String("log", log.Name()),
		zap.Uint64("bytes", st.Bytes),
		zap.Uint64("samples", st.Samples),
		zap.Uint64("averages", st.Averages),
		zap.Uint64("dropped", st.Dropped),
		zap.Uint64("recovered", st.Recovered))

	return multierr.Combine(runErr, rec.Close())
}

// openLog picks the next free log file and persists only the counter so the
// next start continues after it.
func openLog(cfg *config.Config, configPath string, logger *zap.Logger) (*datalog.File, error) {
	name, next, err := datalog.Next(cfg.Log.Dir, cfg.Log.Pattern, cfg.Log.NextFile)
	if err != nil {
		return nil, fmt.Errorf("failed to select log file: %w", err)
	}

	if next != cfg.Log.NextFile {
		cfg.Log.NextFile = next
		if err := config.SaveNextFile(configPath, next); err != nil {
			logger.Warn("Failed to persist log counter", zap.Error(err), zap.String("config", configPath))
		}
	}

	log, err := datalog.Open(cfg.Log.Dir, name)
	if err != nil {
		return nil, err
	}
	logger.Info("Recording to log", zap.String("log", log.Name()))

	return log, nil
}

func serveMetrics(addr string, handler http.Handler, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return srv
}
