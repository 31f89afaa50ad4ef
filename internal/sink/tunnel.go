package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// TunnelConfig describes an optional SSH tunnel between the harness host and
// the sink database. Useful when the filesystem under test sits behind a
// bastion and the central result store is not directly reachable.
type TunnelConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	KeyFile  string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
}

// Validate validates the tunnel configuration.
func (c *TunnelConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: ssh_tunnel: host is required", ErrInvalidSinkConfig)
	}
	if c.User == "" {
		return fmt.Errorf("%w: ssh_tunnel: user is required", ErrInvalidSinkConfig)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: ssh_tunnel: port must be between 0 and 65535", ErrInvalidSinkConfig)
	}
	if c.Password == "" && c.KeyFile == "" {
		return fmt.Errorf("%w: ssh_tunnel: password or key_file is required", ErrInvalidSinkConfig)
	}
	return nil
}

// Tunnel forwards a local listener to the sink database through SSH.
type Tunnel struct {
	client    *ssh.Client
	listener  net.Listener
	localPort int

	mu     sync.Mutex
	closed bool
}

// OpenTunnel connects to the SSH host and starts forwarding a loopback
// listener to remoteHost:remotePort.
func OpenTunnel(ctx context.Context, cfg *TunnelConfig, remoteHost string, remotePort int) (*Tunnel, error) {
	sshConfig, err := cfg.clientConfig()
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", port))

	dialer := net.Dialer{Timeout: sshConfig.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh host %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("listen for tunnel: %w", err)
	}

	t := &Tunnel{
		client:    client,
		listener:  listener,
		localPort: listener.Addr().(*net.TCPAddr).Port,
	}
	go t.accept(remoteHost, remotePort)

	slog.Info("ssh tunnel open",
		slog.String("ssh_host", addr),
		slog.Int("local_port", t.localPort),
		slog.String("target", fmt.Sprintf("%s:%d", remoteHost, remotePort)))
	return t, nil
}

// clientConfig builds the SSH client configuration from the tunnel settings.
func (c *TunnelConfig) clientConfig() (*ssh.ClientConfig, error) {
	cfg := &ssh.ClientConfig{
		User:            c.User,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}
	if c.Password != "" {
		cfg.Auth = append(cfg.Auth, ssh.Password(c.Password))
	}
	if c.KeyFile != "" {
		keyData, err := os.ReadFile(c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key %s: %w", c.KeyFile, err)
		}
		key, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", c.KeyFile, err)
		}
		cfg.Auth = append(cfg.Auth, ssh.PublicKeys(key))
	}
	if len(cfg.Auth) == 0 {
		return nil, fmt.Errorf("%w: ssh_tunnel: no authentication method", ErrInvalidSinkConfig)
	}
	return cfg, nil
}

// accept forwards each local connection through the SSH client.
func (t *Tunnel) accept(remoteHost string, remotePort int) {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				return
			}
			slog.Warn("tunnel accept failed", slog.Any("error", err))
			continue
		}
		go t.forward(conn, remoteHost, remotePort)
	}
}

// forward pipes one local connection to the remote endpoint.
func (t *Tunnel) forward(local net.Conn, remoteHost string, remotePort int) {
	defer local.Close()

	remote, err := t.client.Dial("tcp", fmt.Sprintf("%s:%d", remoteHost, remotePort))
	if err != nil {
		slog.Warn("tunnel dial failed",
			slog.String("target", fmt.Sprintf("%s:%d", remoteHost, remotePort)),
			slog.Any("error", err))
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() { io.Copy(remote, local); done <- struct{}{} }() //nolint:errcheck
	go func() { io.Copy(local, remote); done <- struct{}{} }() //nolint:errcheck
	<-done
	<-done
}

// LocalPort returns the loopback port the sink should dial.
func (t *Tunnel) LocalPort() int {
	return t.localPort
}

// Close tears down the listener and SSH client. Idempotent.
func (t *Tunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	var errs []error
	if err := t.listener.Close(); err != nil {
		errs = append(errs, fmt.Errorf("listener close: %w", err))
	}
	if err := t.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("client close: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close tunnel: %v", errs)
	}
	return nil
}
