// Command sip-dtls-server runs a DTLS-over-ICE signaling transport
// server: it binds a loopback UDP socket as a stand-in ICE component,
// accepts a single peer, drives the session lifecycle, and serves the
// admin introspection + metrics HTTP surface alongside it.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dalbodeule/sip-dtls-transport/internal/admin"
	"github.com/dalbodeule/sip-dtls-transport/internal/certview"
	"github.com/dalbodeule/sip-dtls-transport/internal/config"
	"github.com/dalbodeule/sip-dtls-transport/internal/logging"
	"github.com/dalbodeule/sip-dtls-transport/internal/observability"
	"github.com/dalbodeule/sip-dtls-transport/internal/transport"
)

func main() {
	baseLogger := logging.NewStdJSONLogger("sip-dtls-server")

	cfg, err := config.LoadServerConfigFromEnv()
	if err != nil {
		baseLogger.Error("failed to load server config from env", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	logger := logging.NewLevelFiltered(baseLogger, logging.Level(cfg.Logging.Level))

	logger.Info("sip-dtls-transport server starting", logging.Fields{
		"dtls_listen":  cfg.DTLSListen,
		"admin_listen": cfg.AdminListen,
		"debug":        cfg.Debug,
	})

	metrics := transport.NewMetrics()
	metrics.MustRegister()
	observability.MustRegister()

	registry := admin.NewSessionRegistry()
	handler := admin.NewHandler(logger, os.Getenv("SIPDTLS_ADMIN_API_KEY"), registry)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	adminServer := admin.NewHTTPServer(cfg.AdminListen, mux)

	go func() {
		logger.Info("admin server listening", logging.Fields{"addr": cfg.AdminListen})
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server exited", logging.Fields{"error": err.Error()})
		}
	}()

	ice, err := transport.DialUDPICEChannel(cfg.DTLSListen, "", false)
	if err != nil {
		logger.Error("failed to bind ICE channel", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	defer ice.Close()

	// The peer-certificate audit log is optional: only open it when a DSN
	// is actually configured, so a bare demo run doesn't require Postgres.
	var auditStore *certview.AuditStore
	if strings.TrimSpace(os.Getenv("SIPDTLS_DB_DSN")) != "" {
		storeCfg, err := certview.StoreConfigFromEnv()
		if err != nil {
			logger.Error("failed to load audit store config from env", logging.Fields{"error": err.Error()})
			os.Exit(1)
		}
		openCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		auditStore, err = certview.OpenAuditStore(openCtx, logger, storeCfg)
		cancel()
		if err != nil {
			logger.Error("failed to open audit store", logging.Fields{"error": err.Error()})
			os.Exit(1)
		}
		defer auditStore.Close()
	}

	dispatcher := &transport.SimpleSIPDispatcher{
		OnMessage: func(msg []byte) {
			logger.Info("received SIP message", logging.Fields{"bytes": len(msg)})
		},
	}
	manager := transport.NewInMemoryManager(dispatcher, func(f *transport.Facade, state transport.ConnectionState, info string) {
		logger.Info("session state changed", logging.Fields{"state": state.String(), "info": info})
	})

	sess, err := transport.NewSession(transport.Params{
		Role:       transport.RoleServer,
		Component:  0,
		ICE:        ice,
		Dispatcher: dispatcher,
		Manager:    manager,
		TLS:        cfg.TLS,
		Logger:     logger,
		Metrics:    metrics,
		AuditStore: auditStore,
	})
	if err != nil {
		logger.Error("failed to construct session", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	facade := sess.Facade()
	if err := facade.Register(ctx); err != nil {
		logger.Error("failed to register session", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	registry.Register(sess.ID(), facade)

	<-ctx.Done()
	logger.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.TLS.HandshakeTimeout)
	defer cancel()
	_ = facade.DoShutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)
}
