// Package tunnel maintains a local TCP listener that forwards connections to
// a remote SQL host over SSH, so the SQL store adapter never opens SSH
// itself: it only ever dials the local endpoint this package owns.
package tunnel

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"materialscat/internal/config"
)

// State is one point in the tunnel's lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateDegraded   State = "degraded"
	StateStopped    State = "stopped"
)

// restartBackoff is the auto-restart schedule after a degraded tunnel:
// 5s/15s/45s, capped at 5 minutes.
var restartBackoff = []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}

const maxRestartBackoff = 5 * time.Minute

// Supervisor owns the lifecycle of one local-forward-to-remote-SSH tunnel:
// dialing the SSH host, accepting local connections, piping them to the
// remote address, and restarting on heartbeat failure.
type Supervisor struct {
	cfg config.TunnelConfig
	log zerolog.Logger

	mu          sync.RWMutex
	state       State
	localAddr   string
	failures    int
	restartIter int

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Supervisor from its configuration. Start must be called
// to actually dial; a Supervisor returned by New reports StateIdle and
// LocalAddr() returns "" until then.
func New(cfg config.TunnelConfig, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:   cfg,
		log:   log.With().Str("component", "tunnel.Supervisor").Logger(),
		state: StateIdle,
	}
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LocalAddr returns the address the SQL adapter should dial, empty until the
// tunnel has reached StateActive at least once.
func (s *Supervisor) LocalAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localAddr
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Start dials the SSH host, opens the local listener, and begins the
// heartbeat loop. It blocks until the tunnel reaches StateActive or the
// initial connection attempt fails; the heartbeat/auto-restart loop then
// continues in the background until Stop is called.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.cfg.Enable {
		return fmt.Errorf("tunnel: Start called but tunnel.enable is false")
	}
	s.setState(StateConnecting)

	client, listener, err := s.dial(ctx)
	if err != nil {
		s.setState(StateDegraded)
		return fmt.Errorf("tunnel: initial connect: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	s.mu.Lock()
	s.localAddr = listener.Addr().String()
	s.state = StateActive
	s.failures = 0
	s.restartIter = 0
	s.mu.Unlock()

	go s.acceptLoop(runCtx, client, listener)
	go s.heartbeatLoop(runCtx)
	return nil
}

// Stop tears down the tunnel and its background loops.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.setState(StateStopped)
}

func (s *Supervisor) dial(ctx context.Context) (*ssh.Client, net.Listener, error) {
	key, err := os.ReadFile(s.cfg.KeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("tunnel: read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("tunnel: parse private key: %w", err)
	}
	sshCfg := &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // the tunnel's remote is a trusted internal SQL host reached by configured address, not a public endpoint
		Timeout:         10 * time.Second,
	}
	client, err := ssh.Dial("tcp", s.cfg.Host, sshCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("tunnel: ssh dial %s: %w", s.cfg.Host, err)
	}
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.cfg.LocalPort))
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("tunnel: listen on local port %d: %w", s.cfg.LocalPort, err)
	}
	return client, listener, nil
}

func (s *Supervisor) acceptLoop(ctx context.Context, client *ssh.Client, listener net.Listener) {
	defer listener.Close()
	defer client.Close()
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	for {
		local, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn().Err(err).Msg("tunnel: accept failed")
			return
		}
		remote, err := client.Dial("tcp", fmt.Sprintf("%s:%d", s.cfg.RemoteHost, s.cfg.RemotePort))
		if err != nil {
			s.log.Warn().Err(err).Msg("tunnel: dial remote through ssh failed")
			local.Close()
			continue
		}
		go pipeConn(local, remote)
	}
}

func pipeConn(a, b net.Conn) {
	defer a.Close()
	defer b.Close()
	done := make(chan struct{}, 2)
	go func() { io.Copy(a, b); done <- struct{}{} }()
	go func() { io.Copy(b, a); done <- struct{}{} }()
	<-done
}

// heartbeatLoop opens a probe socket to the local listener every
// HeartbeatInterval; two consecutive failures move the tunnel to
// StateDegraded and, if AutoRestart is set, schedule a reconnect with
// exponential backoff.
func (s *Supervisor) heartbeatLoop(ctx context.Context) {
	defer close(s.done)
	interval := s.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.probe() {
				s.mu.Lock()
				s.failures = 0
				s.mu.Unlock()
				continue
			}
			s.mu.Lock()
			s.failures++
			failed := s.failures
			s.mu.Unlock()
			if failed >= 2 {
				s.setState(StateDegraded)
				if s.cfg.AutoRestart {
					s.scheduleRestart(ctx)
				}
				return
			}
		}
	}
}

func (s *Supervisor) probe() bool {
	conn, err := net.DialTimeout("tcp", s.localAddr, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (s *Supervisor) scheduleRestart(ctx context.Context) {
	s.mu.Lock()
	iter := s.restartIter
	s.restartIter++
	s.mu.Unlock()

	wait := maxRestartBackoff
	if iter < len(restartBackoff) {
		wait = restartBackoff[iter]
	}
	s.setState(StateConnecting)
	select {
	case <-ctx.Done():
		return
	case <-time.After(wait):
	}
	if err := s.Start(context.Background()); err != nil {
		s.log.Warn().Err(err).Msg("tunnel: auto-restart failed")
		s.setState(StateDegraded)
	}
}
