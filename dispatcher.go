package plc_bridge

import (
	"context"
	"github.com/TimeWtr/plc_bridge/const"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"sync"
)

var ErrDuplicateHandler = errors.New("handler already registered")

// Dispatcher 按命令字分发入站消息，任何处理失败都不会越过Dispatch
type Dispatcher struct {
	codec    *Codec
	logger   Logger
	mu       sync.RWMutex
	handlers map[_const.Command]HandlerFunc
}

func NewDispatcher(codec *Codec, logger Logger) *Dispatcher {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Dispatcher{
		codec:    codec,
		logger:   logger,
		handlers: map[_const.Command]HandlerFunc{},
	}
}

// Register 同一命令只能注册一次
func (d *Dispatcher) Register(cmd _const.Command, fn HandlerFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[cmd]; ok {
		return errors.Wrapf(ErrDuplicateHandler, "command %s", cmd)
	}
	d.handlers[cmd] = fn
	return nil
}

// Dispatch 未知命令记录日志后丢弃，处理函数panic转换为错误返回
func (d *Dispatcher) Dispatch(ctx context.Context, raw string) (res Result, err error) {
	res.ID = uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("handler panic: %v", r)
			d.logger.Error("handler panicked",
				Field{Key: "id", Val: res.ID},
				Field{Key: "command", Val: string(res.Command)},
				Field{Key: "panic", Val: r})
		}
	}()

	msg, err := d.codec.Decode(raw)
	if err != nil {
		d.logger.Warn("failed to decode message", Field{Key: "id", Val: res.ID}, Field{Key: "err", Val: err})
		return res, err
	}
	res.Command = msg.Command

	d.mu.RLock()
	fn, ok := d.handlers[msg.Command]
	d.mu.RUnlock()
	if !ok {
		d.logger.Warn("unknown command dropped",
			Field{Key: "id", Val: res.ID},
			Field{Key: "command", Val: string(msg.Command)},
			Field{Key: "raw", Val: raw})
		res.Dropped = true
		return res, nil
	}

	d.logger.Info("command received", Field{Key: "id", Val: res.ID}, Field{Key: "command", Val: string(msg.Command)})
	out, err := fn(ctx, msg)
	out.ID, out.Command = res.ID, msg.Command
	if err != nil {
		d.logger.Error("command failed",
			Field{Key: "id", Val: res.ID},
			Field{Key: "command", Val: string(msg.Command)},
			Field{Key: "err", Val: err})
		return out, err
	}
	return out, nil
}
