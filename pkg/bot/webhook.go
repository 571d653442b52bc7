package bot

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"

	"github.com/orenlab/pytmbot-sub000/pkg/config"
	"github.com/orenlab/pytmbot-sub000/pkg/errs"
	"github.com/orenlab/pytmbot-sub000/pkg/security"
)

const (
	webhookPathPrefix = "/webhook/"

	// maxUpdateBody bounds a single webhook delivery.
	maxUpdateBody = 1 << 20

	// notFoundLimit/notFoundWindow throttle per-IP probing of unknown
	// paths: more than 8 misses in 10 seconds earns a 429.
	notFoundLimit  = 8
	notFoundWindow = 10 * time.Second

	// visitorIdleEviction drops limiter state for IPs gone quiet.
	visitorIdleEviction = 3 * time.Minute
)

// visitor is the 404 limiter state for one remote IP.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Ingress serves Telegram webhook deliveries over TLS. It implements
// telebot's Poller so the runtime supervises it exactly like the long
// poller: Poll registers the webhook, serves until stop closes or the
// server fails, then deregisters.
type Ingress struct {
	cfg    *config.Config
	token  string
	logger zerolog.Logger

	cert      tls.Certificate
	certPath  string
	generated bool

	path string // "/webhook/<token>/"
	addr string // local listen address

	mu       sync.Mutex
	visitors map[string]*visitor
	dest     chan<- tele.Update
	stop     <-chan struct{}
}

// NewIngress prepares the webhook listener: it resolves the TLS
// material (generating a self-signed pair beside the config file when
// none is configured) and fixes the secret update path. socketHost is
// the local bind address; empty means loopback only.
func NewIngress(cfg *config.Config, token, socketHost string, logger zerolog.Logger) (*Ingress, error) {
	host := cfg.WebhookURL()
	if host == "" {
		return nil, errs.New(errs.CodeInit, "webhook", nil, "reason", "webhook_config.url is required")
	}
	if socketHost == "" {
		socketHost = "127.0.0.1"
	}

	certPath, keyPath := cfg.WebhookCert(), cfg.WebhookCertKey()
	if certPath == "" || keyPath == "" {
		dir := filepath.Dir(config.ResolvePath())
		certPath = filepath.Join(dir, "webhook.crt")
		keyPath = filepath.Join(dir, "webhook.key")
	}

	cert, generated, err := security.EnsureWebhookCert(certPath, keyPath, host)
	if err != nil {
		return nil, errs.New(errs.CodeInit, "webhook", err)
	}
	if generated {
		logger.Warn().Msg("generated self-signed webhook certificate")
	}
	if security.CertNeedsRotation(cert.Leaf) {
		logger.Warn().
			Time("not_after", cert.Leaf.NotAfter).
			Msg("webhook certificate expires soon")
	}

	return &Ingress{
		cfg:       cfg,
		token:     token,
		logger:    logger,
		cert:      cert,
		certPath:  certPath,
		generated: generated,
		path:      webhookPathPrefix + token + "/",
		addr:      fmt.Sprintf("%s:%d", socketHost, cfg.WebhookLocalPort()),
		visitors:  make(map[string]*visitor),
	}, nil
}

// Addr returns the local listen address, used by the health loop to
// probe the accept loop.
func (i *Ingress) Addr() string { return i.addr }

// Poll implements tele.Poller. It returns when stop closes (clean) or
// when registration or the TLS server fails (the runtime counts that
// against the ingress restart budget and may call Poll again).
func (i *Ingress) Poll(b *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	i.mu.Lock()
	i.dest = dest
	i.stop = stop
	i.mu.Unlock()

	if err := i.register(b); err != nil {
		i.logger.Error().Err(err).Msg("webhook registration failed")
		return
	}

	server := &http.Server{
		Addr:    i.addr,
		Handler: i,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{i.cert},
			MinVersion:   tls.VersionTLS12,
		},
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServeTLS("", "") }()

	cleanup := time.NewTicker(time.Minute)
	defer cleanup.Stop()

	i.logger.Info().Str("addr", i.addr).Msg("webhook ingress listening")

	for {
		select {
		case <-stop:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			_ = server.Shutdown(ctx)
			cancel()
			if err := b.RemoveWebhook(); err != nil {
				i.logger.Debug().Err(err).Msg("failed to remove webhook")
			}
			return
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				i.logger.Error().Err(err).Msg("webhook server failed")
			}
			return
		case <-cleanup.C:
			i.pruneVisitors()
		}
	}
}

// register uploads the webhook URL, and with it the public certificate
// when the pair is self-signed: Telegram rejects unknown issuers unless
// the certificate arrives at registration.
func (i *Ingress) register(b *tele.Bot) error {
	endpoint := &tele.WebhookEndpoint{
		PublicURL: fmt.Sprintf("https://%s:%d%s", i.cfg.WebhookURL(), i.cfg.WebhookPort(), i.path),
	}
	if i.generated {
		endpoint.Cert = i.certPath
	}

	webhook := &tele.Webhook{
		AllowedUpdates: []string{"message", "callback_query"},
		Endpoint:       endpoint,
	}
	if err := b.SetWebhook(webhook); err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}
	return nil
}

func (i *Ingress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost && r.URL.Path == i.path {
		i.handleUpdate(w, r)
		return
	}
	i.handleUnknown(w, r)
}

func (i *Ingress) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBody))
	if err != nil {
		jsonStatus(w, http.StatusInternalServerError, "error")
		return
	}
	if len(body) == 0 {
		jsonStatus(w, http.StatusBadRequest, "empty body")
		return
	}

	var u tele.Update
	if err := json.Unmarshal(body, &u); err != nil {
		i.logger.Debug().Err(err).Msg("webhook payload unreadable")
		jsonStatus(w, http.StatusInternalServerError, "error")
		return
	}

	i.mu.Lock()
	dest, stop := i.dest, i.stop
	i.mu.Unlock()
	if dest == nil {
		jsonStatus(w, http.StatusInternalServerError, "error")
		return
	}

	select {
	case dest <- u:
		jsonStatus(w, http.StatusOK, "ok")
	case <-stop:
		jsonStatus(w, http.StatusInternalServerError, "error")
	}
}

func (i *Ingress) handleUnknown(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !i.allow404(ip) {
		i.logger.Warn().
			Str("ip", ip).
			Str("path", r.URL.Path).
			Msg("noisy client throttled")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	http.NotFound(w, r)
}

// allow404 charges one unknown-path hit against ip's limiter.
func (i *Ingress) allow404(ip string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	v, ok := i.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(notFoundWindow/notFoundLimit), notFoundLimit)}
		i.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

func (i *Ingress) pruneVisitors() {
	cutoff := time.Now().Add(-visitorIdleEviction)

	i.mu.Lock()
	defer i.mu.Unlock()

	for ip, v := range i.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(i.visitors, ip)
		}
	}
}

func jsonStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
