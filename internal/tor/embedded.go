package tor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultStartupTimeout bounds the bootstrap of the embedded daemon.
const DefaultStartupTimeout = 3 * time.Minute

// Daemon is an embedded Tor process managed by tornago, used by --tor
// when no external Tor is running. Bootstrapping takes one to three
// minutes.
type Daemon struct {
	process        *tornago.TorProcess
	socksAddr      string
	startupTimeout time.Duration
	logger         *slog.Logger
}

// DaemonOption configures a Daemon.
type DaemonOption func(*Daemon)

// WithStartupTimeout sets the maximum time to wait for bootstrap.
func WithStartupTimeout(timeout time.Duration) DaemonOption {
	return func(d *Daemon) {
		if timeout > 0 {
			d.startupTimeout = timeout
		}
	}
}

// WithDaemonLogger sets the logger for lifecycle events.
func WithDaemonLogger(logger *slog.Logger) DaemonOption {
	return func(d *Daemon) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDaemon creates a Daemon. Call Start to launch it.
func NewDaemon(opts ...DaemonOption) *Daemon {
	d := &Daemon{
		startupTimeout: DefaultStartupTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches Tor on OS-assigned ports and blocks until it has
// bootstrapped or the startup timeout expires.
func (d *Daemon) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(d.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	d.logger.Info("starting embedded Tor daemon", "timeout", d.startupTimeout)
	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	// StartTorDaemon does not take a context; honour cancellation after
	// the fact.
	if err := ctx.Err(); err != nil {
		_ = process.Stop() //nolint:errcheck // best effort
		return err
	}

	d.process = process
	d.socksAddr = process.SocksAddr()
	d.logger.Info("embedded Tor daemon ready", "socks", d.socksAddr)
	return nil
}

// Stop shuts the daemon down. It is safe on an unstarted Daemon and may
// be called more than once.
func (d *Daemon) Stop() error {
	if d.process == nil {
		return nil
	}
	err := d.process.Stop()
	d.process = nil
	d.socksAddr = ""
	return err
}

// SocksAddr returns the SOCKS5 address, or "" when not running.
func (d *Daemon) SocksAddr() string {
	return d.socksAddr
}

// IsRunning reports whether the daemon has been started.
func (d *Daemon) IsRunning() bool {
	return d.process != nil
}

// Dialer returns a Dialer routed through the running daemon.
func (d *Daemon) Dialer() (*Dialer, error) {
	if !d.IsRunning() {
		return nil, ErrDaemonNotRunning
	}
	return NewDialer(d.socksAddr)
}
