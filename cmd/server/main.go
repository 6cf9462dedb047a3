package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/peerwave/peerwave/internal/relay"
	"github.com/peerwave/peerwave/internal/server"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	// 1. Create the hub and start its event loop.
	hub := relay.NewHub()
	go hub.Run()

	// 2. Register the handlers.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.Health(hub))
	mux.HandleFunc("/ws", server.ServeWs(hub))

	srv := &http.Server{Addr: *addr, Handler: mux}

	// 3. Shut down cleanly on interrupt.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		<-sig

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	log.Printf("Starting relay server on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
