package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type SSHOptions struct {
	Host        string
	Port        int
	User        string
	Password    string
	KeyFile     string
	Passphrase  string
	KnownHosts  string
	DialTimeout time.Duration
}

// SSH runs read-only shell commands on a remote host over one long-lived
// connection. A broken connection is dropped and redialled on the next call.
type SSH struct {
	addr   string
	config *ssh.ClientConfig

	mu     sync.Mutex
	client *ssh.Client
}

func NewSSH(opts SSHOptions) (*SSH, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("ssh host is required")
	}
	if opts.Port <= 0 {
		opts.Port = 22
	}

	var auth []ssh.AuthMethod
	if opts.KeyFile != "" {
		signer, err := loadSigner(opts.KeyFile, opts.Passphrase)
		if err != nil {
			return nil, err
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if opts.Password != "" {
		auth = append(auth, ssh.Password(opts.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("ssh: no password or key file configured")
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if opts.KnownHosts != "" {
		cb, err := knownhosts.New(opts.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		hostKey = cb
	}

	return &SSH{
		addr: net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		config: &ssh.ClientConfig{
			User:            opts.User,
			Auth:            auth,
			HostKeyCallback: hostKey,
			Timeout:         opts.DialTimeout,
		},
	}, nil
}

func loadSigner(path, passphrase string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file: %w", err)
	}
	return signer, nil
}

func (s *SSH) ReadLines(ctx context.Context, family Family) ([]string, error) {
	p, err := family.Path()
	if err != nil {
		return nil, err
	}
	out, err := s.run(ctx, "cat "+shellQuote(p))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", family, err)
	}
	return splitLines(out), nil
}

func (s *SSH) ListBlockDevices(ctx context.Context) ([]string, error) {
	out, err := s.run(ctx, "ls -1 "+shellQuote(BlockDir))
	if err != nil {
		return nil, fmt.Errorf("list block devices: %w", err)
	}
	return splitLines(out), nil
}

func (s *SSH) ResolveLink(ctx context.Context, path string) (string, error) {
	out, err := s.run(ctx, "readlink -f -- "+shellQuote(path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	target := strings.TrimSpace(string(out))
	if target == "" {
		return "", fmt.Errorf("resolve %s: %w", path, ErrNoData)
	}
	return target, nil
}

func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *SSH) run(ctx context.Context, cmd string) ([]byte, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		s.drop(client)
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.Output(cmd)
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		session.Close()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			var exitErr *ssh.ExitError
			if !errors.As(r.err, &exitErr) {
				s.drop(client)
			}
			return nil, r.err
		}
		return r.out, nil
	}
}

func (s *SSH) connect(ctx context.Context) (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	dialer := net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, s.addr, s.config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", s.addr, err)
	}
	conn.SetDeadline(time.Time{})

	s.client = ssh.NewClient(c, chans, reqs)
	return s.client, nil
}

func (s *SSH) drop(client *ssh.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == client {
		s.client.Close()
		s.client = nil
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
