package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"humidstat.api/v0/server/middleware"
	"humidstat.api/v0/server/route"
)

type ServerOpts struct {
	HostEndpoint string
	PortEndpoint uint16
}

// Run serves the HTTP surface until the given context is cancelled.
func Run(ctx *context.Context, opts *ServerOpts, core *route.Core) error {
	router := mux.NewRouter()
	router.Use(middleware.BasicLogger)
	route.InitRootRoute(router, core)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", opts.HostEndpoint, opts.PortEndpoint),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Shut the server down when the root context cancels.
	go func() {
		<-(*ctx).Done()
		log.Println("Shutting down the http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shut down the http server cleanly: %v\n", err)
		}
	}()

	log.Printf("Starting server on %s\n", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve on '%s': %v", httpServer.Addr, err)
	}
	return nil
}
