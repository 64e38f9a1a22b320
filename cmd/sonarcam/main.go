package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aquasight/sonarcam/internal/api"
	"github.com/aquasight/sonarcam/internal/config"
	"github.com/aquasight/sonarcam/internal/overlay"
	"github.com/aquasight/sonarcam/internal/pointcloud"
	"github.com/aquasight/sonarcam/internal/rip2"
	"github.com/aquasight/sonarcam/internal/store"
	"github.com/aquasight/sonarcam/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	configPath = flag.String("config", "sonarcam.json", "Path to the JSON configuration file")
	sonarAddr  = flag.String("sonar-addr", "", "Sonar UDP address (overrides config)")
	dbFile     = flag.String("db", "", "Path to the calibration database (overrides config)")
	schemaFile = flag.String("schema", "", "Path to the RIP2 descriptor set (overrides config)")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *sonarAddr != "" {
		cfg.SonarAddr = sonarAddr
	}
	if *dbFile != "" {
		cfg.DBPath = dbFile
	}
	if *schemaFile != "" {
		cfg.SchemaPath = schemaFile
	}

	profile, err := config.LoadProfile(*cfg.SensorProfilePath)
	if err != nil {
		log.Fatalf("Failed to load sensor profile: %v", err)
	}
	geom := pointcloud.Geometry{
		ElevationRad: profile.ElevationDeg * math.Pi / 180,
		MaxRange:     profile.MaxRangeM,
		MinIntensity: profile.MinIntensity,
	}

	st, err := store.Open(*cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open calibration store: %v", err)
	}
	defer st.Close()

	clouds := &pointcloud.Snapshot{}
	svc, err := overlay.NewService(st, clouds, nil)
	if err != nil {
		log.Fatalf("Failed to initialise overlay service: %v", err)
	}
	if cfg.OverlayEnabled != nil || cfg.OverlayPointSize != nil || cfg.OverlayDecimate != nil || cfg.OverlayColorMode != nil {
		opts := svc.Options()
		if cfg.OverlayEnabled != nil {
			opts.Enabled = *cfg.OverlayEnabled
		}
		if cfg.OverlayPointSize != nil {
			opts.PointSize = *cfg.OverlayPointSize
		}
		if cfg.OverlayDecimate != nil {
			opts.Decimate = *cfg.OverlayDecimate
		}
		if cfg.OverlayColorMode != nil {
			opts.ColorMode = *cfg.OverlayColorMode
		}
		svc.SetOptions(opts)
	}

	schema := rip2.NewSchemaProvider(*cfg.SchemaPath)
	decoder := rip2.NewDecoder(schema)
	stats := rip2.NewPacketStats()

	listener := rip2.NewUDPListener(rip2.UDPListenerConfig{
		Addr:        *cfg.SonarAddr,
		RcvBuf:      *cfg.RcvBuf,
		LogInterval: cfg.StatsIntervalDuration(),
		Stats:       stats,
		Decoder:     decoder,
		Handler: func(ri *rip2.RangeImage) {
			cloud := pointcloud.BuildCloud(ri, geom)
			stats.AddPoints(len(cloud.Points))
			clouds.Publish(cloud)
		},
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sonar UDP listener routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Sonar listener error: %v", err)
		}
		log.Print("Sonar listener routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status": "ok", "service": "sonarcam", "version": %q, "timestamp": "%s"}`,
				version.String(), time.Now().UTC().Format(time.RFC3339))
		})

		apiMux := api.NewServer(svc).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))

		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
