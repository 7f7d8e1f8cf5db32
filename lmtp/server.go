package lmtp

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/spachava753/mailidx/lmtp"

// ServerConfig configures the LMTP listener.
type ServerConfig struct {
	// Addr is a TCP address for ListenAndServe, or a path when Network is
	// "unix".
	Addr    string
	Network string
	// Domain is announced in the greeting.
	Domain string
	// Username and Password enable AUTH PLAIN. When Username is empty no
	// authentication is offered or required.
	Username string
	Password string
	// AllowInsecureAuth permits AUTH without TLS. LMTP normally runs on a
	// local socket, so servers usually set this when credentials are used.
	AllowInsecureAuth bool
	MaxMessageBytes   int64
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider
}

// Server accepts LMTP deliveries and hands them to a Deliverer.
type Server struct {
	srv     *smtp.Server
	network string
	addr    string
	logger  *slog.Logger
	closed  atomic.Bool
}

// NewServer returns a Server delivering through d.
func NewServer(d *Deliverer, cfg ServerConfig) (*Server, error) {
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	delivered, err := mp.Meter(instrumentationName).Int64Counter(
		"mailidx.lmtp.delivered",
		metric.WithDescription("Number of messages delivered over LMTP"),
	)
	if err != nil {
		return nil, fmt.Errorf("lmtp: creating instruments failed: %w", err)
	}

	be := &backend{
		deliverer: d,
		username:  cfg.Username,
		password:  cfg.Password,
		delivered: delivered,
		logger:    d.logger,
	}

	srv := smtp.NewServer(be)
	srv.LMTP = true
	srv.Domain = cfg.Domain
	if srv.Domain == "" {
		srv.Domain = "localhost"
	}
	srv.AllowInsecureAuth = cfg.AllowInsecureAuth
	if cfg.MaxMessageBytes > 0 {
		srv.MaxMessageBytes = cfg.MaxMessageBytes
	}
	if cfg.ReadTimeout > 0 {
		srv.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		srv.WriteTimeout = cfg.WriteTimeout
	}

	network := cfg.Network
	if network == "" {
		network = "tcp"
	}
	return &Server{srv: srv, network: network, addr: cfg.Addr, logger: d.logger}, nil
}

// Serve accepts connections on l until Close is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("lmtp server listening", "addr", l.Addr().String())
	err := s.srv.Serve(l)
	if s.closed.Load() {
		return nil
	}
	return err
}

// ListenAndServe listens on the configured address and serves connections.
func (s *Server) ListenAndServe() error {
	if s.network == "unix" {
		removeStaleSocket(s.addr)
	}
	l, err := net.Listen(s.network, s.addr)
	if err != nil {
		return fmt.Errorf("lmtp: listen on %s %s failed: %w", s.network, s.addr, err)
	}
	return s.Serve(l)
}

// removeStaleSocket removes a socket left behind by a previous run. Other
// files are left alone so that Listen reports them.
func removeStaleSocket(path string) {
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		os.Remove(path)
	}
}

// Close stops the listener and closes open connections. Serve returns nil
// once Close has been called.
func (s *Server) Close() error {
	s.closed.Store(true)
	return s.srv.Close()
}

type backend struct {
	deliverer *Deliverer
	username  string
	password  string
	delivered metric.Int64Counter
	logger    *slog.Logger
}

func (be *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	remote := ""
	if c != nil && c.Conn() != nil {
		remote = c.Conn().RemoteAddr().String()
	}
	return &session{
		be:     be,
		authed: be.username == "",
		logger: be.logger.With("remote", remote),
	}, nil
}

var (
	errAuthRequired = &smtp.SMTPError{
		Code:         530,
		EnhancedCode: smtp.EnhancedCode{5, 7, 0},
		Message:      "Authentication required",
	}
	errAuthFailed = &smtp.SMTPError{
		Code:         535,
		EnhancedCode: smtp.EnhancedCode{5, 7, 8},
		Message:      "Invalid credentials",
	}
	errUnknownMechanism = &smtp.SMTPError{
		Code:         504,
		EnhancedCode: smtp.EnhancedCode{5, 7, 4},
		Message:      "Unsupported authentication mechanism",
	}
	errNoRecipients = &smtp.SMTPError{
		Code:         554,
		EnhancedCode: smtp.EnhancedCode{5, 5, 1},
		Message:      "No valid recipients",
	}
)

// session holds the envelope of one transaction.
type session struct {
	be     *backend
	authed bool
	logger *slog.Logger

	from string
	rcpt []string
}

var (
	_ smtp.Session     = (*session)(nil)
	_ smtp.AuthSession = (*session)(nil)
	_ smtp.LMTPSession = (*session)(nil)
)

func (s *session) AuthMechanisms() []string {
	if s.be.username == "" {
		return nil
	}
	return []string{sasl.Plain}
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain || s.be.username == "" {
		return nil, errUnknownMechanism
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if identity != "" && identity != username {
			return errAuthFailed
		}
		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.be.username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.be.password)) == 1
		if !userOK || !passOK {
			s.logger.Warn("lmtp authentication failed", "username", username)
			return errAuthFailed
		}
		s.authed = true
		return nil
	}), nil
}

func (s *session) Mail(from string, opts *smtp.MailOptions) error {
	if !s.authed {
		return errAuthRequired
	}
	s.from = from
	return nil
}

func (s *session) Rcpt(to string, opts *smtp.RcptOptions) error {
	if !s.authed {
		return errAuthRequired
	}
	s.rcpt = append(s.rcpt, to)
	return nil
}

// Data handles a transaction when the server runs as plain SMTP.
func (s *session) Data(r io.Reader) error {
	_, err := s.deliver(r)
	return err
}

// LMTPData delivers the message once and reports the outcome for every
// recipient.
func (s *session) LMTPData(r io.Reader, status smtp.StatusCollector) error {
	delivery, err := s.deliver(r)
	for _, rcpt := range s.rcpt {
		status.SetStatus(rcpt, err)
	}
	if err == nil {
		s.logger.Debug("lmtp transaction complete", "message_id", delivery.MessageID, "recipients", len(s.rcpt))
	}
	return nil
}

func (s *session) deliver(r io.Reader) (Delivery, error) {
	if !s.authed {
		return Delivery{}, errAuthRequired
	}
	if len(s.rcpt) == 0 {
		return Delivery{}, errNoRecipients
	}

	var extra []string
	for _, rcpt := range s.rcpt {
		if tag := DetailTag(rcpt); tag != "" {
			extra = append(extra, tag)
		}
	}

	delivery, err := s.be.deliverer.Deliver(r, extra...)
	if err != nil {
		s.logger.Error("lmtp delivery failed", "from", s.from, "error", err)
		return Delivery{}, &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Delivery failed, try again later",
		}
	}
	s.be.delivered.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Bool("duplicate", delivery.Duplicate),
	))
	return delivery, nil
}

func (s *session) Reset() {
	s.from = ""
	s.rcpt = nil
}

func (s *session) Logout() error {
	return nil
}
