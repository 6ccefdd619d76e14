package config

import (
	"bufio"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LoggingConfig holds the shared logging settings: level plus optional
// Loki push parameters, unchanged in shape from the teacher's config.
type LoggingConfig struct {
	Level string
	Loki  LokiConfig
}

// LokiConfig holds Loki HTTP push settings.
type LokiConfig struct {
	Enable       bool
	Endpoint     string
	TenantID     string
	Username     string
	Password     string
	StaticLabels map[string]string
}

// TLSParams configures a session's DTLS identity and trust policy.
// Credential/CA *loading policy* beyond this shape (ACME, rotation,
// revocation checking) is out of scope, matching spec.md's explicit
// Non-goals; this only carries the paths and knobs a Session needs at
// construction time.
type TLSParams struct {
	// LocalCertFile/LocalKeyFile name a PEM identity to present. When
	// both are empty, the session falls back to an ephemeral
	// self-signed identity (certview.GenerateEphemeralIdentity).
	LocalCertFile string
	LocalKeyFile  string

	// CABundleFile, if set, is trusted for verifying the peer. When
	// empty, verification relies solely on the InsecureSkipVerify /
	// custom verify hook configured by the caller.
	CABundleFile string

	// InsecureSkipVerify disables chain verification, leaving only the
	// caller's VerifyPeerCertificate hook (if any) to gate the peer.
	// Mirrors the teacher's Debug-mode cert-skip behavior.
	InsecureSkipVerify bool

	// HandshakeTimeout bounds how long the HANDSHAKING state may run
	// before the session reports TIMEOUT and moves to DISCONNECTED.
	HandshakeTimeout time.Duration

	// TransactionDeadline is the default deadline an outbound SIP
	// REQUEST gets when the caller doesn't supply one explicitly.
	TransactionDeadline time.Duration
}

// ServerConfig is the server-process configuration: DTLS listen
// address, admin/metrics HTTP surface, and ambient logging, adapted
// from the teacher's ServerConfig (which mixed in domain/proxy fields
// this module has no use for).
type ServerConfig struct {
	DTLSListen  string // e.g. ":5061"
	AdminListen string // e.g. ":8443", admin introspection + metrics
	Debug       bool

	TLS     TLSParams
	Logging LoggingConfig
}

// ClientConfig is the client-process configuration.
type ClientConfig struct {
	ServerAddr string // DTLS server address (host:port)
	Debug      bool

	TLS     TLSParams
	Logging LoggingConfig
}

var (
	dotenvOnce sync.Once
	dotenvErr  error
)

// loadDotEnvOnce reads ./.env into the process environment exactly once,
// supporting KEY=VALUE, export KEY=VALUE, and '#' comment lines.
func loadDotEnvOnce() {
	dotenvOnce.Do(func() {
		fi, err := os.Stat(".env")
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return
			}
			dotenvErr = err
			return
		}
		if fi.IsDir() {
			return
		}

		f, err := os.Open(".env")
		if err != nil {
			dotenvErr = err
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if strings.HasPrefix(line, "export ") {
				line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)

			if key != "" {
				if _, exists := os.LookupEnv(key); !exists {
					_ = os.Setenv(key, val)
				}
			}
		}
		if err := scanner.Err(); err != nil {
			dotenvErr = err
		}
	})
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// parseKeyValueCSV turns "k1=v1,k2=v2" into a map.
func parseKeyValueCSV(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	m := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k != "" {
			m[k] = v
		}
	}
	return m
}

func loadLoggingFromEnv() LoggingConfig {
	level := getEnvOrDefault("SIPDTLS_LOG_LEVEL", "info")

	lokiEnable := getEnvBool("SIPDTLS_LOKI_ENABLE", false)
	lokiEndpoint := os.Getenv("SIPDTLS_LOKI_ENDPOINT")
	lokiTenantID := os.Getenv("SIPDTLS_LOKI_TENANT_ID")
	lokiUsername := os.Getenv("SIPDTLS_LOKI_USERNAME")
	lokiPassword := os.Getenv("SIPDTLS_LOKI_PASSWORD")
	lokiStaticLabels := parseKeyValueCSV(os.Getenv("SIPDTLS_LOKI_STATIC_LABELS"))

	return LoggingConfig{
		Level: level,
		Loki: LokiConfig{
			Enable:       lokiEnable,
			Endpoint:     lokiEndpoint,
			TenantID:     lokiTenantID,
			Username:     lokiUsername,
			Password:     lokiPassword,
			StaticLabels: lokiStaticLabels,
		},
	}
}

func loadTLSParamsFromEnv(prefix string) TLSParams {
	return TLSParams{
		LocalCertFile:       os.Getenv(prefix + "_TLS_CERT_FILE"),
		LocalKeyFile:        os.Getenv(prefix + "_TLS_KEY_FILE"),
		CABundleFile:        os.Getenv(prefix + "_TLS_CA_FILE"),
		InsecureSkipVerify:  getEnvBool(prefix+"_TLS_INSECURE_SKIP_VERIFY", false),
		HandshakeTimeout:    getEnvDuration(prefix+"_HANDSHAKE_TIMEOUT", 30*time.Second),
		TransactionDeadline: getEnvDuration(prefix+"_TXN_DEADLINE", 32*time.Second),
	}
}

// LoadServerConfigFromEnv loads .env once, then applies "env > .env"
// precedence to build a ServerConfig.
func LoadServerConfigFromEnv() (*ServerConfig, error) {
	loadDotEnvOnce()
	if dotenvErr != nil {
		return nil, dotenvErr
	}

	cfg := &ServerConfig{
		DTLSListen:  getEnvOrDefault("SIPDTLS_SERVER_DTLS_LISTEN", ":5061"),
		AdminListen: getEnvOrDefault("SIPDTLS_SERVER_ADMIN_LISTEN", ":8443"),
		Debug:       getEnvBool("SIPDTLS_SERVER_DEBUG", false),
		TLS:         loadTLSParamsFromEnv("SIPDTLS_SERVER"),
		Logging:     loadLoggingFromEnv(),
	}
	return cfg, nil
}

// LoadClientConfigFromEnv loads .env once, then applies "env > .env"
// precedence to build a ClientConfig.
func LoadClientConfigFromEnv() (*ClientConfig, error) {
	loadDotEnvOnce()
	if dotenvErr != nil {
		return nil, dotenvErr
	}

	cfg := &ClientConfig{
		ServerAddr: os.Getenv("SIPDTLS_CLIENT_SERVER_ADDR"),
		Debug:      getEnvBool("SIPDTLS_CLIENT_DEBUG", false),
		TLS:        loadTLSParamsFromEnv("SIPDTLS_CLIENT"),
		Logging:    loadLoggingFromEnv(),
	}
	return cfg, nil
}

// normalizePort turns a bare numeric port into a ":port" listen string,
// leaving anything else untouched.
func normalizePort(p string, def string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return def
	}
	if strings.HasPrefix(p, ":") {
		return p
	}
	if _, err := strconv.Atoi(p); err == nil {
		return ":" + p
	}
	return p
}
