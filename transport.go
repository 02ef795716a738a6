package plc_bridge

import (
	"context"
	"github.com/TimeWtr/plc_bridge/const"
	"github.com/cockroachdb/errors"
	"io"
	"net"
	"sync"
	"time"
)

// Destination 出站控制器地址
type Destination struct {
	// Name 日志中使用的名称，例如PLT、BoxPacking
	Name    string
	Address string
}

// Sender 向控制器发送一条消息，失败不重试
type Sender interface {
	Send(ctx context.Context, dest Destination, payload string) error
}

type SenderOption func(s *TCPSender)

func WithSendTimeout(timeout time.Duration) SenderOption {
	return func(s *TCPSender) {
		s.timeout = timeout
	}
}

// WithReplyWait 发送后等待控制器回复的时长，0表示不读取回复
func WithReplyWait(wait time.Duration) SenderOption {
	return func(s *TCPSender) {
		s.replyWait = wait
	}
}

func WithSenderLogger(logger Logger) SenderOption {
	return func(s *TCPSender) {
		s.logger = logger
	}
}

// TCPSender 每条消息新建一个短连接
type TCPSender struct {
	timeout   time.Duration
	replyWait time.Duration
	logger    Logger
}

func NewTCPSender(opts ...SenderOption) *TCPSender {
	s := &TCPSender{
		timeout: _const.DefaultSendTimeout,
		logger:  NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TCPSender) Send(ctx context.Context, dest Destination, payload string) error {
	if payload == "" {
		return markMalformed(errors.Newf("empty payload for %s", dest.Name))
	}
	if dest.Address == "" {
		return markConfiguration(errors.Newf("no address for %s", dest.Name))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", dest.Address)
	if err != nil {
		return markTransport(errors.Wrapf(err, "dial %s %s", dest.Name, dest.Address))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err = io.WriteString(conn, payload); err != nil {
		return markTransport(errors.Wrapf(err, "write %s %s", dest.Name, dest.Address))
	}
	s.logger.Info("message sent",
		Field{Key: "dest", Val: dest.Name},
		Field{Key: "addr", Val: dest.Address},
		Field{Key: "payload", Val: payload})

	if s.replyWait <= 0 {
		return nil
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.replyWait))
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if n > 0 {
		s.logger.Debug("reply received",
			Field{Key: "dest", Val: dest.Name},
			Field{Key: "reply", Val: string(buf[:n])})
	}
	if err != nil && !errors.Is(err, io.EOF) && !isTimeout(err) {
		s.logger.Warn("failed to read reply", Field{Key: "dest", Val: dest.Name}, Field{Key: "err", Val: err})
	}
	return nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// MessageHandler 处理一条入站消息
type MessageHandler interface {
	Dispatch(ctx context.Context, raw string) (Result, error)
}

type ListenerOption func(l *Listener)

func WithAck(ack string) ListenerOption {
	return func(l *Listener) {
		l.ack = ack
	}
}

func WithListenerLogger(logger Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}

// Listener 控制器入站连接，每次读取视为一条完整消息，处理后回复ack
type Listener struct {
	name    string
	address string
	ack     string
	handler MessageHandler
	logger  Logger

	mu sync.Mutex
	ln net.Listener
}

func NewListener(name, address string, handler MessageHandler, opts ...ListenerOption) *Listener {
	l := &Listener{
		name:    name,
		address: address,
		ack:     _const.DefaultAck,
		handler: handler,
		logger:  NewNopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Listener) Name() string {
	return l.name
}

// Listen 绑定端口，重复调用无效果
func (l *Listener) Listen(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.address)
	if err != nil {
		return markTransport(errors.Wrapf(err, "listen %s %s", l.name, l.address))
	}
	l.ln = ln
	l.logger.Info("listener started", Field{Key: "name", Val: l.name}, Field{Key: "addr", Val: ln.Addr().String()})
	return nil
}

// Addr Listen之前返回nil
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Run ctx取消后关闭端口并等待所有连接退出
func (l *Listener) Run(ctx context.Context) error {
	if err := l.Listen(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return markTransport(errors.Wrapf(err, "accept %s", l.name))
			}
			delay = nextAcceptDelay(delay)
			l.logger.Warn("failed to accept connection",
				Field{Key: "name", Val: l.name},
				Field{Key: "retry", Val: delay},
				Field{Key: "err", Val: err})
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			continue
		}
		delay = 0

		wg.Add(1)
		go func() {
			defer wg.Done()
			l.serve(ctx, conn)
		}()
	}
}

// nextAcceptDelay accept连续失败时的退避，从5ms开始翻倍，最大1s
func nextAcceptDelay(delay time.Duration) time.Duration {
	if delay == 0 {
		return _const.MinAcceptDelay
	}
	return min(delay*2, _const.MaxAcceptDelay)
}

func (l *Listener) serve(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	l.logger.Info("client connected", Field{Key: "name", Val: l.name}, Field{Key: "remote", Val: remote})

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()
	defer conn.Close()

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			raw := string(buf[:n])
			l.logger.Debug("message received", Field{Key: "name", Val: l.name}, Field{Key: "raw", Val: raw})
			if _, derr := l.handler.Dispatch(ctx, raw); derr != nil {
				l.logger.Warn("failed to handle message",
					Field{Key: "name", Val: l.name},
					Field{Key: "remote", Val: remote},
					Field{Key: "err", Val: derr})
			}
			if _, werr := io.WriteString(conn, l.ack+"\x00"); werr != nil {
				l.logger.Warn("failed to send ack", Field{Key: "name", Val: l.name}, Field{Key: "err", Val: werr})
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				l.logger.Warn("connection error", Field{Key: "name", Val: l.name}, Field{Key: "err", Val: err})
			}
			l.logger.Info("client disconnected", Field{Key: "name", Val: l.name}, Field{Key: "remote", Val: remote})
			return
		}
	}
}
