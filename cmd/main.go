package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"runtime"
	"syscall"
	"time"

	rotates "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/cesnet/ipspoof-detector/pkg/api"
	"github.com/cesnet/ipspoof-detector/pkg/config"
	"github.com/cesnet/ipspoof-detector/pkg/detector"
	"github.com/cesnet/ipspoof-detector/pkg/metrics"
	"github.com/cesnet/ipspoof-detector/pkg/pipeline"
	"github.com/cesnet/ipspoof-detector/pkg/policy"
	"github.com/cesnet/ipspoof-detector/pkg/prefix"
	"github.com/cesnet/ipspoof-detector/pkg/sink"
	"github.com/cesnet/ipspoof-detector/pkg/source"
)

func InitLogger(cfg *config.Config) error {
	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
	logrus.SetFormatter(formatter)

	var level logrus.Level
	var err error
	var logWriter *rotates.RotateLogs

	switch cfg.Log.Level {
	case "DEBUG":
		level = logrus.DebugLevel
	case "WARN":
		level = logrus.WarnLevel
	case "INFO":
		level = logrus.InfoLevel
	case "ERROR":
		level = logrus.ErrorLevel
	case "FATAL":
		level = logrus.FatalLevel
	case "PANIC":
		level = logrus.PanicLevel
	default:
		level = logrus.WarnLevel
	}

	if _, err := os.Stat(cfg.Log.Dir); os.IsNotExist(err) {
		if err := os.MkdirAll(cfg.Log.Dir, 0755); err != nil {
			return err
		}
	}
	logFileName := path.Join(cfg.Log.Dir, cfg.Log.Filename)

	if level < logrus.PanicLevel || level > logrus.TraceLevel {
		logrus.Errorln("init log failed, level not supported")
		logrus.SetLevel(logrus.WarnLevel)
	} else {
		logrus.SetLevel(level)
	}

	if runtime.GOOS == "windows" {
		logWriter, err = rotates.New(
			logFileName+".%Y%m%d%H%M",
			rotates.WithMaxAge(24*time.Hour),
			rotates.WithRotationTime(time.Hour),
		)
	} else {
		logWriter, err = rotates.New(
			logFileName+".%Y%m%d%H%M",
			rotates.WithLinkName(logFileName),
			rotates.WithMaxAge(24*time.Hour),
			rotates.WithRotationTime(time.Hour),
		)
	}
	if err != nil {
		return err
	}

	lfHook := lfshook.NewHook(lfshook.WriterMap{
		logrus.DebugLevel: logWriter,
		logrus.InfoLevel:  logWriter,
		logrus.WarnLevel:  logWriter,
		logrus.ErrorLevel: logWriter,
		logrus.FatalLevel: logWriter,
		logrus.PanicLevel: logWriter,
	}, &logrus.TextFormatter{})

	logrus.AddHook(lfHook)
	return nil
}

func loadPolicyEngine(fs afero.Fs, policyPath string) (*policy.Engine, error) {
	eng, err := policy.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("build policy engine: %w", err)
	}
	if policyPath == "" {
		return eng, nil
	}
	data, err := afero.ReadFile(fs, policyPath)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	if err := eng.LoadYAML(data); err != nil {
		return nil, fmt.Errorf("load policy file: %w", err)
	}
	return eng, nil
}

func main() {
	fs := afero.NewOsFs()

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(fs, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := InitLogger(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logrus.Info("Starting IP spoofing detector...")

	v4Bogon, v6Bogon, err := prefix.LoadFile(fs, cfg.Detector.BogonFile)
	if err != nil {
		logrus.Fatalf("Failed to load bogon prefix file: %v", err)
	}

	var v4Specific, v6Specific *prefix.Table
	if cfg.Detector.SpecificFile != "" {
		v4Specific, v6Specific, err = prefix.LoadFile(fs, cfg.Detector.SpecificFile)
		if err != nil {
			logrus.Fatalf("Failed to load specific prefix file: %v", err)
		}
	}

	policyEngine, err := loadPolicyEngine(fs, cfg.Detector.PolicyFile)
	if err != nil {
		logrus.Fatalf("Failed to load policy overrides: %v", err)
	}

	det := detector.New(detector.Config{
		V4Bogon:          v4Bogon,
		V4Specific:       v4Specific,
		V6Bogon:          v6Bogon,
		V6Specific:       v6Specific,
		SymRWTime:        uint32(cfg.Detector.SymRWTime),
		NFThreshold:      uint64(cfg.Detector.NFThreshold),
		RotationInterval: uint32(cfg.Detector.RotationInterval),
		Policy:           policyEngine,
		Metrics:          metrics.NewDetectorMetrics(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := pipeline.NewPipeline()
	if err := p.SetConfig(cfg); err != nil {
		logrus.Fatalf("Failed to set pipeline config: %v", err)
	}

	var src pipeline.Source
	switch cfg.Source.Type {
	case "replay":
		src = source.NewReplaySource(fs, cfg.Source.ReplayFile, cfg.Pipeline.BufferSize)
	case "live":
		liveSource, err := source.NewLiveSource(cfg)
		if err != nil {
			logrus.Fatalf("Failed to create live source: %v", err)
		}
		src = liveSource
	default:
		logrus.Fatalf("Unsupported source type for standalone run: %s", cfg.Source.Type)
	}
	p.SetSource(src)

	if err := p.AddProcessor(det); err != nil {
		logrus.Fatalf("Failed to add detector processor: %v", err)
	}

	var flowSink pipeline.Sink = sink.NewLogSink()
	if cfg.Output.ClickHouseDSN != "" {
		chSink, err := sink.NewClickHouseSink(cfg.Output.ClickHouseDSN)
		if err != nil {
			logrus.Fatalf("Failed to create ClickHouse sink: %v", err)
		}
		flowSink = chSink
	}
	p.SetSink(flowSink)

	if err := p.Start(ctx); err != nil {
		logrus.Fatalf("Failed to start pipeline: %v", err)
	}
	logrus.Info("Pipeline started successfully")

	adminServer := api.NewServer(cfg, det, p)
	go func() {
		if err := adminServer.Start(); err != nil {
			logrus.Warnf("Admin server stopped: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logrus.Infof("Received signal %v, shutting down...", sig)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := adminServer.Stop(shutdownCtx); err != nil {
		logrus.Errorf("Error stopping admin server: %v", err)
	}
	if err := p.Stop(); err != nil {
		logrus.Errorf("Error stopping pipeline: %v", err)
	}

	logrus.Info("Shutdown complete")
}
