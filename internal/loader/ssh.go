package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultSSHPort = "22"

var (
	ErrSSHHostRequired = errors.New("loader: ssh host is required")
	ErrSSHUserRequired = errors.New("loader: ssh user is required")
	ErrSSHKeyRequired  = errors.New("loader: ssh key path is required")
)

// SSHRunner runs commands on a remote host that shares the artifact
// directory. Every Run opens its own connection; cancelling ctx aborts the
// dial, the handshake or the running command.
type SSHRunner struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
}

var _ Runner = SSHRunner{}

func (r SSHRunner) Run(ctx context.Context, cmd string, args []string, stdout, stderr io.Writer) (int, error) {
	client, err := r.connect(ctx)
	if err != nil {
		return -1, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("loader: ssh session: %w", err)
	}
	defer session.Close()
	session.Stdout = stdout
	session.Stderr = stderr

	stop := context.AfterFunc(ctx, func() {
		_ = session.Signal(ssh.SIGKILL)
		_ = client.Close()
	})
	defer stop()

	err = session.Run(joinCommand(cmd, args))
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), err
	}
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	return -1, err
}

// connect dials under ctx and bounds the handshake by Timeout or the ctx
// deadline, whichever is earlier.
func (r SSHRunner) connect(ctx context.Context) (*ssh.Client, error) {
	addr, err := r.address()
	if err != nil {
		return nil, err
	}
	cfg, err := r.clientConfig()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: r.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("loader: ssh dial %s: %w", addr, err)
	}

	var deadline time.Time
	if r.Timeout > 0 {
		deadline = time.Now().Add(r.Timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	stop()
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("loader: ssh handshake %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (r SSHRunner) address() (string, error) {
	host := strings.TrimSpace(r.Host)
	switch {
	case host == "":
		return "", ErrSSHHostRequired
	case r.Port != "":
		return net.JoinHostPort(host, r.Port), nil
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	return net.JoinHostPort(host, defaultSSHPort), nil
}

func (r SSHRunner) clientConfig() (*ssh.ClientConfig, error) {
	if strings.TrimSpace(r.User) == "" {
		return nil, ErrSSHUserRequired
	}
	auth, err := r.publicKeyAuth()
	if err != nil {
		return nil, err
	}
	hostKeys, err := r.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            r.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKeys,
		Timeout:         r.Timeout,
	}, nil
}

func (r SSHRunner) publicKeyAuth() (ssh.AuthMethod, error) {
	if strings.TrimSpace(r.KeyPath) == "" {
		return nil, ErrSSHKeyRequired
	}
	raw, err := os.ReadFile(r.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("loader: read ssh key: %w", err)
	}
	var signer ssh.Signer
	if len(r.Passphrase) > 0 {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(raw, r.Passphrase)
	} else {
		signer, err = ssh.ParsePrivateKey(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("loader: parse ssh key %s: %w", r.KeyPath, err)
	}
	return ssh.PublicKeys(signer), nil
}

func (r SSHRunner) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if r.InsecureSkipHostKeyChecking {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := strings.TrimSpace(r.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("loader: known_hosts path unset: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("loader: known_hosts %s: %w", path, err)
	}
	return callback, nil
}
