package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
)

// MetricsAuthConfig controls who may scrape /metrics.
type MetricsAuthConfig struct {
	Username string
	Password string

	// TrustedNetworks may scrape without credentials, e.g. an in-cluster
	// Prometheus. Matched against the connection address only, never
	// against forwarding headers.
	TrustedNetworks []netip.Prefix
}

// MetricsAuthMiddleware guards the Prometheus scrape endpoint.
type MetricsAuthMiddleware struct {
	userDigest [sha256.Size]byte
	passDigest [sha256.Size]byte
	trusted    []netip.Prefix
	enabled    bool
	logger     *slog.Logger
}

// NewMetricsAuthMiddleware creates a new metrics auth middleware.
// With no credentials configured, scrapes are open to everyone.
func NewMetricsAuthMiddleware(cfg MetricsAuthConfig, logger *slog.Logger) *MetricsAuthMiddleware {
	return &MetricsAuthMiddleware{
		userDigest: sha256.Sum256([]byte(cfg.Username)),
		passDigest: sha256.Sum256([]byte(cfg.Password)),
		trusted:    cfg.TrustedNetworks,
		enabled:    cfg.Username != "" || cfg.Password != "",
		logger:     logger,
	}
}

// Enabled reports whether credentials are required.
func (m *MetricsAuthMiddleware) Enabled() bool {
	return m.enabled
}

// Handler returns middleware that admits trusted networks and valid basic auth.
func (m *MetricsAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled || m.fromTrustedNetwork(r) {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok || !m.credentialsMatch(user, pass) {
			m.logger.Warn("metrics scrape rejected", "remote_addr", r.RemoteAddr, "has_credentials", ok)
			m.unauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// credentialsMatch compares fixed-size digests so neither the length nor the
// failing field shows up in timing.
func (m *MetricsAuthMiddleware) credentialsMatch(user, pass string) bool {
	u := sha256.Sum256([]byte(user))
	p := sha256.Sum256([]byte(pass))
	userOK := subtle.ConstantTimeCompare(u[:], m.userDigest[:])
	passOK := subtle.ConstantTimeCompare(p[:], m.passDigest[:])
	return userOK&passOK == 1
}

func (m *MetricsAuthMiddleware) fromTrustedNetwork(r *http.Request) bool {
	if len(m.trusted) == 0 {
		return false
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range m.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func (m *MetricsAuthMiddleware) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="quotaledger-metrics", charset="UTF-8"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    "unauthorized",
			"message": "Metrics require authentication.",
		},
	})
}
