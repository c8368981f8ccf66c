package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	metricsmw "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/spf13/pflag"

	"github.com/example/ntfsbridge/pkg/blockdev"
	"github.com/example/ntfsbridge/pkg/bridge"
	"github.com/example/ntfsbridge/pkg/ntfs/memfs"
	"github.com/example/ntfsbridge/pkg/server"
)

func main() {
	configPath := pflag.String("config", "", "Path to YAML configuration file")
	listenAddr := pflag.String("listen", "", "Network address to listen on (overrides config)")
	metricsAddr := pflag.String("metrics-listen", "", "Metrics address to listen on (overrides config)")
	forceReadOnly := pflag.Bool("read-only", false, "Mount every volume read-only")
	exports := pflag.StringArray("export", nil, "Volume to serve, as device=image (repeatable)")
	format := pflag.Bool("format", false, "Format unformatted images before serving")
	pflag.Parse()

	config := server.DefaultConfig()
	if *configPath != "" {
		var err error
		config, err = server.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *listenAddr != "" {
		config.ListenAddress = *listenAddr
	}
	if *metricsAddr != "" {
		config.MetricsAddress = *metricsAddr
	}
	if *forceReadOnly {
		config.ForceReadOnly = true
	}
	for _, e := range *exports {
		ec, err := parseExport(e, *format)
		if err != nil {
			log.Fatalf("Invalid --export %q: %v", e, err)
		}
		config.Exports = append(config.Exports, ec)
	}
	if len(config.Exports) == 0 {
		log.Fatal("No volumes to serve; use --export or the config file")
	}

	// The registry resolves devices for the engine, and the engine mounts
	// volumes for the registry.
	registry := bridge.NewRegistry(bridge.Config{ForceReadOnly: config.ForceReadOnly})
	engine := memfs.New(registry)
	registry.SetEngine(engine)

	volumes := make([]*bridge.Volume, 0, len(config.Exports))
	for _, e := range config.Exports {
		vol, err := setupExport(registry, e)
		if err != nil {
			log.Fatalf("Failed to set up export %q: %v", e.Device, err)
		}
		volumes = append(volumes, vol)
		log.Printf("Serving %q from %s", e.Device, e.Image)
	}

	bridgeServer, err := server.NewServer(config, volumes)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if config.MetricsAddress != "" {
		go serveMetrics(config.MetricsAddress)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- bridgeServer.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down...", sig)
	}

	log.Println("bridge server stopped")
}

func parseExport(s string, format bool) (server.ExportConfig, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			if i == 0 || i == len(s)-1 {
				break
			}
			return server.ExportConfig{Device: s[:i], Image: s[i+1:], Format: format}, nil
		}
	}
	return server.ExportConfig{}, fmt.Errorf("expected device=image")
}

func setupExport(registry *bridge.Registry, e server.ExportConfig) (*bridge.Volume, error) {
	dev, err := blockdev.OpenFile(e.Image, e.ReadOnly)
	if err != nil {
		return nil, err
	}
	shim := blockdev.NewShim(dev, e.BlockSize, e.ReadOnly)
	if e.Format && !memfs.Formatted(shim) {
		if e.ReadOnly {
			return nil, fmt.Errorf("cannot format read-only image %s", e.Image)
		}
		serial := e.Serial
		if serial == 0 {
			serial = uint64(os.Getpid())<<32 | 1
		}
		if err := memfs.Format(shim, serial, e.Label); err != nil {
			return nil, err
		}
		log.Printf("Formatted %s: serial %#x, label %q", e.Image, serial, e.Label)
	}
	return registry.NewVolume(e.Device, shim), nil
}

func serveMetrics(addr string) {
	mdlw := middleware.New(middleware.Config{
		Recorder: metricsmw.NewRecorder(metricsmw.Config{}),
	})
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Printf("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mdlw.Handler("", mux)); err != nil {
		log.Printf("metrics server error: %v", err)
	}
}
