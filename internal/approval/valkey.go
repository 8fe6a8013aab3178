package approval

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/SkySingh04/DreamOps-sub000/internal/utils"
)

// ValkeyStore shares approval state through a Valkey/Redis-compatible server
// so every engine replica and the approver CLI see the same held actions.
// Each held action owns two keys under the prefix: "pending:<run/action>"
// carrying the request payload and "decision:<run/action>" holding the
// verdict. Verdicts are written with SET NX so the first one wins.
type ValkeyStore struct {
	cfg    ValkeyConfig
	prefix string
}

// ValkeyConfig holds connection parameters for the shared approval store.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

// NewValkeyStore connects to the shared approval store. It pings the target
// so misconfigured credentials or addresses fail at boot, not mid-run.
func NewValkeyStore(cfg ValkeyConfig) (*ValkeyStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "dreamops:approval:"
	}

	store := &ValkeyStore{cfg: cfg, prefix: prefix}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if _, err := store.do(ctx, "PING"); err != nil {
		return nil, utils.NewAppError("approval.valkey", "connect to approval store", err)
	}
	return store, nil
}

// PublishPending records a held action so approver tooling can list it. The
// payload is the JSON approval request; the marker expires with the wait.
func (s *ValkeyStore) PublishPending(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	reply, err := s.do(ctx, setCommand(s.pendingKey(key), string(payload), ttl, false)...)
	if err != nil {
		return err
	}
	if reply.value != "OK" {
		return fmt.Errorf("unexpected reply %q publishing pending approval", reply.value)
	}
	return nil
}

// ClearPending removes the held-action marker once a verdict landed or the
// wait elapsed.
func (s *ValkeyStore) ClearPending(ctx context.Context, key string) error {
	_, err := s.do(ctx, "DEL", s.pendingKey(key))
	return err
}

// ReadVerdict returns the verdict written for a held action, or ErrNotFound
// while nobody has decided yet.
func (s *ValkeyStore) ReadVerdict(ctx context.Context, key string) (string, error) {
	reply, err := s.do(ctx, "GET", s.decisionKey(key))
	if err != nil {
		return "", err
	}
	if reply.null {
		return "", ErrNotFound
	}
	return reply.value, nil
}

// WriteVerdict records a verdict for a held action. The write is conditional
// on the key being absent; false means another approver answered first.
func (s *ValkeyStore) WriteVerdict(ctx context.Context, key, verdict string, ttl time.Duration) (bool, error) {
	reply, err := s.do(ctx, setCommand(s.decisionKey(key), verdict, ttl, true)...)
	if err != nil {
		return false, err
	}
	return !reply.null, nil
}

// Close is a no-op; every command uses its own short-lived connection.
func (s *ValkeyStore) Close() error { return nil }

func (s *ValkeyStore) pendingKey(key string) string  { return s.prefix + "pending:" + key }
func (s *ValkeyStore) decisionKey(key string) string { return s.prefix + "decision:" + key }

// setCommand builds a SET with millisecond expiry and an optional NX guard.
func setCommand(key, value string, ttl time.Duration, onlyIfAbsent bool) []string {
	args := []string{"SET", key, value}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	if onlyIfAbsent {
		args = append(args, "NX")
	}
	return args
}

// do runs one command with retries on transient network failures. Each
// attempt uses a fresh connection; there is no pooling because approval
// traffic is a handful of commands per held action.
func (s *ValkeyStore) do(ctx context.Context, args ...string) (reply, error) {
	attempts := s.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return reply{}, err
		}
		r, err := s.roundTrip(ctx, args)
		if err == nil {
			return r, nil
		}
		lastErr = err
		if !retryable(err) || attempt == attempts-1 {
			break
		}
		time.Sleep(time.Duration(1<<attempt) * 25 * time.Millisecond)
	}
	return reply{}, lastErr
}

func (s *ValkeyStore) roundTrip(ctx context.Context, args []string) (reply, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return reply{}, err
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	if err := s.handshake(conn, reader); err != nil {
		return reply{}, err
	}
	return s.exchange(conn, reader, args)
}

func (s *ValkeyStore) connect(ctx context.Context) (net.Conn, error) {
	timeout := s.cfg.DialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}

	dialer := net.Dialer{Timeout: timeout}
	if !s.cfg.TLS {
		return dialer.DialContext(ctx, "tcp", s.cfg.Addr)
	}
	host := s.cfg.Addr
	if h, _, err := net.SplitHostPort(s.cfg.Addr); err == nil {
		host = h
	}
	return tls.DialWithDialer(&dialer, "tcp", s.cfg.Addr, &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: host,
	})
}

// handshake authenticates and selects the database on a fresh connection.
func (s *ValkeyStore) handshake(conn net.Conn, reader *bufio.Reader) error {
	if s.cfg.Password != "" {
		args := []string{"AUTH", s.cfg.Password}
		if s.cfg.Username != "" {
			args = []string{"AUTH", s.cfg.Username, s.cfg.Password}
		}
		r, err := s.exchange(conn, reader, args)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		if !strings.EqualFold(r.value, "OK") {
			return fmt.Errorf("auth refused: %s", r.value)
		}
	}
	if s.cfg.DB > 0 {
		r, err := s.exchange(conn, reader, []string{"SELECT", strconv.Itoa(s.cfg.DB)})
		if err != nil {
			return fmt.Errorf("select db %d: %w", s.cfg.DB, err)
		}
		if !strings.EqualFold(r.value, "OK") {
			return fmt.Errorf("select db %d refused: %s", s.cfg.DB, r.value)
		}
	}
	return nil
}

func (s *ValkeyStore) exchange(conn net.Conn, reader *bufio.Reader, args []string) (reply, error) {
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return reply{}, err
	}
	if _, err := conn.Write(encodeCommand(args)); err != nil {
		return reply{}, err
	}
	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
		return reply{}, err
	}
	return readReply(reader)
}

// encodeCommand renders one command as a RESP array of bulk strings.
func encodeCommand(args []string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "*%d\r\n", len(args))
	for _, arg := range args {
		fmt.Fprintf(&buf, "$%d\r\n%s\r\n", len(arg), arg)
	}
	return buf.Bytes()
}

// reply is one decoded server response. null marks an absent key; value
// carries simple strings, integers and bulk payloads alike.
type reply struct {
	null  bool
	value string
}

// readReply decodes the subset of RESP the approval commands produce: simple
// strings, integers, bulk strings, nulls and server errors.
func readReply(reader *bufio.Reader) (reply, error) {
	line, err := readLine(reader)
	if err != nil {
		return reply{}, err
	}
	if len(line) == 0 {
		return reply{}, errors.New("empty reply")
	}

	body := line[1:]
	switch line[0] {
	case '+', ':':
		return reply{value: body}, nil
	case '-':
		return reply{}, fmt.Errorf("server error: %s", body)
	case '_':
		return reply{null: true}, nil
	case '$':
		size, err := strconv.Atoi(body)
		if err != nil {
			return reply{}, fmt.Errorf("bad bulk length %q", body)
		}
		if size < 0 {
			return reply{null: true}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(reader, buf); err != nil {
			return reply{}, err
		}
		if !bytes.HasSuffix(buf, []byte("\r\n")) {
			return reply{}, errors.New("bulk reply missing terminator")
		}
		return reply{value: string(buf[:size])}, nil
	default:
		return reply{}, fmt.Errorf("unexpected reply prefix %q", line[0])
	}
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// retryable reports whether a fresh connection is worth another attempt:
// network timeouts and dropped or refused connections qualify, protocol and
// server errors do not.
func retryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
