// Command sip-dtls-client dials a DTLS-over-ICE signaling server over a
// loopback UDP socket standing in for a negotiated ICE component, drives
// the handshake, and sends SIP messages read line-delimited from stdin.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dalbodeule/sip-dtls-transport/internal/config"
	"github.com/dalbodeule/sip-dtls-transport/internal/logging"
	"github.com/dalbodeule/sip-dtls-transport/internal/transport"
)

func main() {
	baseLogger := logging.NewStdJSONLogger("sip-dtls-client")

	cfg, err := config.LoadClientConfigFromEnv()
	if err != nil {
		baseLogger.Error("failed to load client config from env", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	logger := logging.NewLevelFiltered(baseLogger, logging.Level(cfg.Logging.Level))

	if strings.TrimSpace(cfg.ServerAddr) == "" {
		logger.Error("SIPDTLS_CLIENT_SERVER_ADDR is required", nil)
		os.Exit(1)
	}

	logger.Info("sip-dtls-transport client starting", logging.Fields{
		"server_addr": cfg.ServerAddr,
		"debug":       cfg.Debug,
	})

	ice, err := transport.DialUDPICEChannel(":0", cfg.ServerAddr, true)
	if err != nil {
		logger.Error("failed to dial ICE channel", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	defer ice.Close()

	dispatcher := &transport.SimpleSIPDispatcher{
		OnMessage: func(msg []byte) {
			logger.Info("received SIP message", logging.Fields{"bytes": len(msg)})
			fmt.Fprintf(os.Stdout, "<< %s", msg)
		},
	}
	manager := transport.NewInMemoryManager(dispatcher, func(f *transport.Facade, state transport.ConnectionState, info string) {
		logger.Info("session state changed", logging.Fields{"state": state.String(), "info": info})
	})

	sess, err := transport.NewSession(transport.Params{
		Role:       transport.RoleClient,
		Component:  0,
		ICE:        ice,
		Dispatcher: dispatcher,
		Manager:    manager,
		TLS:        cfg.TLS,
		Logger:     logger,
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

	logger.Info("waiting for handshake to complete", nil)
	for {
		info := facade.GetInfo()
		if info.Established {
			logger.Info("session established", logging.Fields{"cipher_suite": info.CipherSuite})
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}

	go readStdinLoop(ctx, logger, facade, cfg.ServerAddr)

	<-ctx.Done()
	logger.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.TLS.HandshakeTimeout)
	defer cancel()
	_ = facade.DoShutdown(shutdownCtx)
}

// readStdinLoop sends each non-empty stdin line as a SIP MESSAGE request
// body, a minimal demo of the outbound path's deadline/callback contract.
func readStdinLoop(ctx context.Context, logger logging.Logger, facade *transport.Facade, remoteAddr string) {
	scanner := bufio.NewScanner(os.Stdin)
	seq := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		seq++
		opKey := fmt.Sprintf("cli-%d", seq)
		payload := fmt.Sprintf("MESSAGE sip:peer SIP/2.0\r\nContent-Length: %d\r\n\r\n%s", len(line), line)

		err := facade.SendMsg(transport.SendRequest{
			OpKey:      opKey,
			Payload:    []byte(payload),
			RemoteAddr: remoteAddr,
			IsRequest:  true,
			Callback: func(res transport.SendResult) {
				if res.Err != nil {
					logger.Warn("send failed", logging.Fields{"op_key": opKey, "error": res.Err.Error()})
					return
				}
				logger.Debug("send completed", logging.Fields{"op_key": opKey, "bytes_sent": res.BytesSent})
			},
		})
		if err != nil {
			logger.Warn("enqueue failed", logging.Fields{"op_key": opKey, "error": err.Error()})
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
