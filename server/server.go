// SPDX-License-Identifier: ice License 1.0

package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	httpserver "github.com/subzero-relay/subzero/server/http"
	wsserver "github.com/subzero-relay/subzero/server/ws"
)

type Config struct {
	wsserver.Config `mapstructure:",squash" yaml:",inline"`
	Info            httpserver.Config `yaml:"info"`
}

// ListenAndServe brings up a single listener serving both the websocket
// relay endpoint and the NIP-11 relay information document on "/",
// dispatched by the presence of the Upgrade header, mirroring the teacher's
// http2 handler (internal/http2/server.go) with the HTTP/3/WebTransport
// sibling dropped.
func ListenAndServe(ctx context.Context, cancel context.CancelFunc, cfg *Config, wsHandler http.Handler) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	infoHandler := httpserver.NewNIP11Handler(&cfg.Info)
	router.Any("/", route(wsHandler, infoHandler))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%v", cfg.Port),
		Handler: router,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Printf("ERROR:%v", errors.Wrap(err, "failed to shut down server"))
		}
	}()

	var err error
	if cfg.CertPath != "" {
		err = srv.ListenAndServeTLS(cfg.CertPath, cfg.KeyPath)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("ERROR:%v", errors.Wrap(err, "server stopped"))
	}
	cancel()
}

// route mirrors the teacher's WithWS gin middleware (server/ws/internal/router.go),
// which picks between the websocket and plain HTTP path per request instead
// of registering them on separate routes, simplified down to the one
// Upgrade-header check a single-transport relay needs.
func route(wsHandler, infoHandler http.Handler) gin.HandlerFunc {
	wrappedWS := gin.WrapH(wsHandler)
	wrappedInfo := gin.WrapH(infoHandler)

	return func(c *gin.Context) {
		if c.GetHeader("Upgrade") == "websocket" {
			wrappedWS(c)

			return
		}
		wrappedInfo(c)
	}
}
