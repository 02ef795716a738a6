package plc_bridge

import (
	"context"
	"github.com/TimeWtr/plc_bridge/const"
	"github.com/TimeWtr/plc_bridge/domain"
	"github.com/TimeWtr/plc_bridge/repository"
	"github.com/cockroachdb/errors"
	"strconv"
	"strings"
	"time"
)

// HandlerFunc 处理一条已解码的命令
type HandlerFunc func(ctx context.Context, msg Message) (Result, error)

// Result 命令处理结果
type Result struct {
	// ID 每条入站消息的唯一标识，用于关联日志
	ID      string
	Command _const.Command
	// JobID 命令涉及的作业
	JobID string
	// Sent 是否向控制器发出了回复消息
	Sent bool
	// Dropped 未知命令被丢弃
	Dropped bool
}

// lastFinishedKey 缓存中上一次上报完工的作业
const lastFinishedKey = "last_finished_job"

type HandlersOption func(h *Handlers)

func WithClock(now func() time.Time) HandlersOption {
	return func(h *Handlers) {
		h.now = now
	}
}

func WithHandlersLogger(logger Logger) HandlersOption {
	return func(h *Handlers) {
		h.logger = logger
	}
}

func WithSessionCache(cache Cache) HandlersOption {
	return func(h *Handlers) {
		h.cache = cache
	}
}

// Handlers 四个控制器命令的实现
type Handlers struct {
	lifecycle *Lifecycle
	finished  repository.FinishedJobRepository
	guard     *Guard
	codec     *Codec
	sender    Sender
	audit     AuditSink
	// plt 排产控制器，接收jobInfo
	plt Destination
	// box 包装控制器，接收boxInfo
	box    Destination
	cache  Cache
	now    func() time.Time
	logger Logger
}

func NewHandlers(
	lifecycle *Lifecycle,
	finished repository.FinishedJobRepository,
	guard *Guard,
	codec *Codec,
	sender Sender,
	audit AuditSink,
	plt, box Destination,
	opts ...HandlersOption) *Handlers {
	h := &Handlers{
		lifecycle: lifecycle,
		finished:  finished,
		guard:     guard,
		codec:     codec,
		sender:    sender,
		audit:     audit,
		plt:       plt,
		box:       box,
		now:       time.Now,
		logger:    NewNopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.cache == nil {
		h.cache = NewLocalCache(1)
	}
	return h
}

// RegisterTo 把所有命令注册到分发器
func (h *Handlers) RegisterTo(d *Dispatcher) error {
	for cmd, fn := range map[_const.Command]HandlerFunc{
		_const.CommandJobChange:      h.JobChange,
		_const.CommandRejects:        h.Rejects,
		_const.CommandFinishedCart:   h.FinishedCartons,
		_const.CommandRequestBoxInfo: h.RequestBoxInfo,
	} {
		if err := d.Register(cmd, fn); err != nil {
			return err
		}
	}
	return nil
}

// JobChange 换单，记录开始时间后把新的当前/下一作业发给排产控制器
func (h *Handlers) JobChange(ctx context.Context, msg Message) (Result, error) {
	res := Result{Command: msg.Command}
	tr, err := h.lifecycle.Advance(ctx)
	if err != nil {
		return res, errors.Wrap(err, "advance lifecycle")
	}
	if tr.Current == nil {
		return res, ErrNoCurrentJob
	}

	job := tr.Current
	res.JobID = job.JobID
	now := h.now()
	stamp := now.Format(_const.LogTimeLayout)

	h.upsert(ctx, domain.FinishedJobPatch{JobID: job.JobID, StartTime: &stamp})
	h.record(ctx, _const.MessageTypeJobChange, AuditRow{
		"DateTime":             stamp,
		domain.FieldJobID:      job.JobID,
		domain.FieldJobRun:     job.Get(domain.FieldJobRun),
		domain.FieldMaterialID: job.Get(domain.FieldMaterialID),
		domain.FieldLabelName:  job.Get(domain.FieldLabelName),
	})

	res.Sent = h.send(ctx, h.plt, h.codec.EncodeJobInfo(tr.Current, tr.Next, now))
	return res, nil
}

// Rejects 格式 REJECTS no:<JobID> <reason> <qty>，废品数累加到完工记录
func (h *Handlers) Rejects(ctx context.Context, msg Message) (Result, error) {
	res := Result{Command: msg.Command}
	jobID, reason, qty := "", "0", "0"
	if parts := msg.Tokens; len(parts) >= 4 {
		if jp := strings.Split(parts[1], ":"); len(jp) == 2 && strings.EqualFold(jp[0], "no") {
			jobID = jp[1]
		}
		reason, qty = parts[2], parts[3]
	} else {
		h.logger.Warn("rejects message too short", Field{Key: "raw", Val: msg.Raw})
	}
	res.JobID = jobID

	if jobID != "" {
		delta, err := strconv.Atoi(qty)
		if err != nil {
			h.logger.Warn("invalid reject quantity",
				Field{Key: "job", Val: jobID},
				Field{Key: "qty", Val: qty},
				Field{Key: "err", Val: markMalformed(err)})
		} else {
			h.upsert(ctx, domain.FinishedJobPatch{JobID: jobID, RejectDelta: delta})
		}
	}

	h.record(ctx, _const.MessageTypeRejects, AuditRow{
		"DateTime":         h.now().Format(_const.LogTimeLayout),
		domain.FieldJobID:  jobID,
		"RejectReasonCode": reason,
		"Quantity":         qty,
	})
	return res, nil
}

// FinishedCartons 格式 FINISHEDCART <counter> <JobID> <finished> <boxQty>
// 计数是控制器的累计值，直接覆盖。作业切换时给上一个作业写结束时间
func (h *Handlers) FinishedCartons(ctx context.Context, msg Message) (Result, error) {
	res := Result{Command: msg.Command}
	jobID, finished, boxQty := "", "0", "0"
	if parts := msg.Tokens; len(parts) >= 5 {
		jobID, finished, boxQty = parts[2], parts[3], parts[4]
	} else {
		h.logger.Warn("finished cartons message too short", Field{Key: "raw", Val: msg.Raw})
	}
	res.JobID = jobID
	stamp := h.now().Format(_const.LogTimeLayout)

	if v, ok := h.cache.Get(lastFinishedKey); ok {
		if last, _ := v.(string); last != "" && last != jobID {
			h.upsert(ctx, domain.FinishedJobPatch{JobID: last, EndTime: &stamp})
		}
	}
	h.cache.Set(lastFinishedKey, jobID)

	if jobID != "" {
		patch := domain.FinishedJobPatch{JobID: jobID}
		if n, ok := h.counter(jobID, "finished", finished); ok {
			patch.FinishedCartons = &n
		}
		if n, ok := h.counter(jobID, "boxQty", boxQty); ok {
			patch.BoxQtyActual = &n
		}
		h.upsert(ctx, patch)
	}

	h.record(ctx, _const.MessageTypeFinishedCartons, AuditRow{
		"DateTime":        stamp,
		domain.FieldJobID: jobID,
		"BoxQtyActual":    boxQty,
		"FinishedCartons": finished,
	})
	return res, nil
}

// RequestBoxInfo 包装控制器请求装箱信息，先换单再发送当前作业
func (h *Handlers) RequestBoxInfo(ctx context.Context, msg Message) (Result, error) {
	res := Result{Command: msg.Command}
	tr, err := h.lifecycle.Advance(ctx)
	if err != nil {
		return res, errors.Wrap(err, "advance lifecycle")
	}
	if tr.Current == nil {
		return res, ErrNoCurrentJob
	}

	res.JobID = tr.Current.JobID
	res.Sent = h.send(ctx, h.box, h.codec.EncodeBoxInfo(tr.Current, h.now()))
	return res, nil
}

func (h *Handlers) counter(jobID, name, value string) (int, bool) {
	n, err := strconv.Atoi(value)
	if err != nil {
		h.logger.Warn("invalid counter",
			Field{Key: "job", Val: jobID},
			Field{Key: "counter", Val: name},
			Field{Key: "value", Val: value})
		return 0, false
	}
	return n, true
}

// upsert 完工记录和作业文档共用同一个互斥区，失败只记录日志
func (h *Handlers) upsert(ctx context.Context, patch domain.FinishedJobPatch) {
	err := h.guard.Do(ctx, func(ctx context.Context) error {
		_, err := h.finished.Upsert(ctx, patch)
		return err
	})
	if err != nil {
		h.logger.Error("failed to update finished job",
			Field{Key: "job", Val: patch.JobID},
			Field{Key: "err", Val: err})
	}
}

func (h *Handlers) record(ctx context.Context, t _const.MessageType, row AuditRow) {
	if err := h.audit.Record(ctx, t, row); err != nil {
		h.logger.Error("failed to write audit", Field{Key: "type", Val: t.String()}, Field{Key: "err", Val: err})
	}
}

func (h *Handlers) send(ctx context.Context, dest Destination, payload string) bool {
	if err := h.sender.Send(ctx, dest, payload); err != nil {
		h.logger.Error("failed to send message",
			Field{Key: "dest", Val: dest.Name},
			Field{Key: "err", Val: err})
		return false
	}
	return true
}
