package main

import (
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"auteur/api"
	"auteur/config"
	"auteur/handlers"
	"auteur/services/resolver"
	"auteur/services/tmdb"
	"auteur/services/toplist"
	"auteur/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] configuration error: %v", err)
	}
	setupLogging(cfg.Log)

	// One limiter and one memo cache for the whole process; every request
	// shares them.
	sem := semaphore.NewWeighted(cfg.TMDB.MaxInFlight)
	client := tmdb.NewClient(cfg.TMDB.APIKey, nil, sem)
	res := resolver.New(client, cfg.Resolver.CacheSize)
	svc := toplist.NewService(res)

	analyzeHandler := handlers.NewAnalyzeHandler(svc, cfg.Server.MaxUploadMB)
	uploadLimiter := api.NewUploadLimiter(rate.Every(20*time.Second), 3)

	r := utils.NewRouter()
	r.HandleFunc("/api/analyze",
		api.RateLimitHandlerFunc(uploadLimiter, analyzeHandler.Analyze)).
		Methods(http.MethodPost, http.MethodOptions)

	addr := cfg.ListenAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("[main] listening on %s (tmdb maxInFlight=%d cacheSize=%d)",
		addr, cfg.TMDB.MaxInFlight, cfg.Resolver.CacheSize)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("[main] server error: %v", err)
	}
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Path == "" {
		return
	}
	rotating := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotating))
	log.Printf("[main] logging to %s (maxSize=%dMB backups=%d)", cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups)
}
