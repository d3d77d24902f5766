package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wilcooo/fx-cast/internal/bridge"
	"github.com/wilcooo/fx-cast/internal/models"
	"github.com/wilcooo/fx-cast/internal/server"
	"github.com/wilcooo/fx-cast/internal/session"
)

func main() {
	bridgeURL := envOr("BRIDGE_URL", "ws://127.0.0.1:9556/bridge")
	listenAddr := envOr("LISTEN_ADDR", ":7936")
	appID := envOr("APP_ID", "CC1AD845")
	sessionID := os.Getenv("SESSION_ID")
	transportID := os.Getenv("TRANSPORT_ID")
	namespaces := envOr("NAMESPACES", "urn:x-cast:com.google.cast.media")
	corsOrigin := os.Getenv("CORS_ORIGIN")

	if sessionID == "" || transportID == "" {
		log.Fatal("SESSION_ID and TRANSPORT_ID are required (the connection handshake provides them)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, err := bridge.Dial(ctx, bridgeURL)
	if err != nil {
		log.Fatalf("connecting to bridge: %v", err)
	}
	defer ws.Close()

	app := models.Application{
		AppID:       appID,
		SessionID:   sessionID,
		TransportID: transportID,
	}
	for _, ns := range strings.Split(namespaces, ",") {
		if ns = strings.TrimSpace(ns); ns != "" {
			app.Namespaces = append(app.Namespaces, models.Namespace{Name: ns})
		}
	}

	sess := session.New(ws, app)
	defer sess.Close(nil)

	statusCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if _, err := sess.GetReceiverStatus(statusCtx); err != nil {
		log.Printf("initial receiver status: %v", err)
	}
	cancel()

	var opts []server.Option
	if corsOrigin != "" {
		opts = append(opts, server.WithCORSOrigin(corsOrigin))
	}
	srv := server.NewServer(sess, opts...)

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("fxcast mirroring session %s, listening on %s", sessionID, listenAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-sess.Done():
			log.Println("session disconnected")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
