package plc_bridge

import (
	"context"
	"github.com/TimeWtr/plc_bridge/const"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type Bridge interface {
	// Run 启动所有监听器和批次对账，ctx取消后返回
	Run(ctx context.Context) error
	// Register 注册命令处理函数
	Register(cmd _const.Command, fn HandlerFunc) error
}

type Options func(core *BridgeCore)

// WithLimiter 设置同时处理的入站命令数量，多个控制器连接共享
func WithLimiter(limiter int64) Options {
	return func(c *BridgeCore) {
		c.limiter = semaphore.NewWeighted(limiter)
	}
}

func WithIngestor(ingestor *Ingestor) Options {
	return func(c *BridgeCore) {
		c.ingestor = ingestor
	}
}

// WithListener 增加一个控制器入站端口
func WithListener(name, address string) Options {
	return func(c *BridgeCore) {
		c.endpoints = append(c.endpoints, Destination{Name: name, Address: address})
	}
}

func WithBridgeAck(ack string) Options {
	return func(c *BridgeCore) {
		c.ack = ack
	}
}

type BridgeCore struct {
	logger Logger
	// 命令分发
	dispatcher *Dispatcher
	// 入站端口
	endpoints []Destination
	listeners []*Listener
	// 批次对账，可以为空
	ingestor *Ingestor
	// 限流
	limiter *semaphore.Weighted
	ack     string
}

func NewBridge(dispatcher *Dispatcher, logger Logger, opts ...Options) *BridgeCore {
	if logger == nil {
		logger = NewNopLogger()
	}
	b := &BridgeCore{
		dispatcher: dispatcher,
		logger:     logger,
		ack:        _const.DefaultAck,
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.limiter == nil {
		b.limiter = semaphore.NewWeighted(_const.DefaultLimiter)
	}

	for _, ep := range b.endpoints {
		b.listeners = append(b.listeners, NewListener(ep.Name, ep.Address, b,
			WithAck(b.ack),
			WithListenerLogger(logger.Named(ep.Name))))
	}

	return b
}

func (b *BridgeCore) Listeners() []*Listener {
	return b.listeners
}

func (b *BridgeCore) Register(cmd _const.Command, fn HandlerFunc) error {
	return b.dispatcher.Register(cmd, fn)
}

// Dispatch 限流后交给分发器
func (b *BridgeCore) Dispatch(ctx context.Context, raw string) (Result, error) {
	if err := b.limiter.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer b.limiter.Release(1)

	return b.dispatcher.Dispatch(ctx, raw)
}

// Run 任一监听器绑定失败时停止全部组件并返回错误
func (b *BridgeCore) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range b.listeners {
		g.Go(func() error {
			return l.Run(gctx)
		})
	}

	if b.ingestor != nil {
		g.Go(func() error {
			return b.ingestor.Run(gctx)
		})
	}

	b.logger.Info("bridge started",
		Field{Key: "listeners", Val: len(b.listeners)},
		Field{Key: "ingest", Val: b.ingestor != nil})
	err := g.Wait()
	b.logger.Info("bridge stopped")
	return err
}
