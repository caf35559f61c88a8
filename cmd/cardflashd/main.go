package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/jgarman/cardflash/internal/config"
	"github.com/jgarman/cardflash/internal/mdns"
	"github.com/jgarman/cardflash/internal/service"
)

func main() {
	configPath := flag.String("config", "/etc/cardflash/config.json", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	handler := service.New(cfg.Cache.Dir, service.Defaults{
		SkipVerify: cfg.Flash.SkipVerify,
		Eject:      cfg.Flash.Eject,
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORS.AllowedOrigins,
		AllowedMethods:   cfg.Server.CORS.AllowedMethods,
		AllowedHeaders:   cfg.Server.CORS.AllowedHeaders,
		AllowCredentials: cfg.Server.CORS.AllowCredentials,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      c.Handler(handler.Routes()),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	if cfg.MDNS.Enabled {
		pub, err := mdns.Announce(mdns.Service{
			Name:       cfg.MDNS.ServiceName,
			Port:       cfg.Server.Port,
			TXTRecords: cfg.MDNS.TXTRecords,
		})
		if err != nil {
			log.WithError(err).Warn("mdns advertisement unavailable")
		} else {
			defer pub.Stop()
			log.WithField("service", cfg.MDNS.ServiceName).Info("advertising over mdns")
		}
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	// Streaming progress connections are long-lived; give them a moment to
	// notice, then cut.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("forced shutdown")
	}
}
