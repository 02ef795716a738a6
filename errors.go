package plc_bridge

import (
	"github.com/cockroachdb/errors"
)

// 错误分类，具体错误通过errors.Mark标记后可用errors.Is判断
var (
	// ErrConfiguration 缺少必要的协议表或路径，整次操作放弃，不做任何修改
	ErrConfiguration = errors.New("configuration error")
	// ErrMalformedInput 单条输入无法解析，降级处理后继续
	ErrMalformedInput = errors.New("malformed input")
	// ErrTransport 连接被拒、超时或socket错误，记录日志后丢弃
	ErrTransport = errors.New("transport error")
	// ErrStoreIO 持久化文档读写失败
	ErrStoreIO = errors.New("store io error")
)

var (
	ErrNoCurrentJob = errors.New("no current job")
	ErrEmptyMessage = errors.New("empty message")
)

func markConfiguration(err error) error {
	return errors.Mark(err, ErrConfiguration)
}

func markMalformed(err error) error {
	return errors.Mark(err, ErrMalformedInput)
}

func markTransport(err error) error {
	return errors.Mark(err, ErrTransport)
}

func markStoreIO(err error) error {
	return errors.Mark(err, ErrStoreIO)
}
