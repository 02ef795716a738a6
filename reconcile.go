package plc_bridge

import (
	"context"
	"github.com/TimeWtr/plc_bridge/const"
	"github.com/TimeWtr/plc_bridge/domain"
	"github.com/TimeWtr/plc_bridge/repository"
	"github.com/cockroachdb/errors"
	"sort"
	"strconv"
	"strings"
)

// ReconcileReport 一次对账的统计
type ReconcileReport struct {
	Rows      int
	Inserted  int
	Updated   int
	Unchanged int
	// Skipped 缺少JobID被丢弃的行
	Skipped int
	// Protected 命中Current/Next作业被丢弃的行
	Protected int
	// Purged 清除的Done作业
	Purged int
	// Shifted 为插入腾位置而后移的作业次数
	Shifted int
	// Sentinel ScheduleIndex非法而使用哨兵值的行
	Sentinel int
}

// Reconciler 把新批次合并到作业文档
type Reconciler struct {
	store  repository.JobStore
	guard  *Guard
	schema domain.ProtocolSchema
	logger Logger
}

func NewReconciler(store repository.JobStore, guard *Guard, schema domain.ProtocolSchema, logger Logger) *Reconciler {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Reconciler{
		store:  store,
		guard:  guard,
		schema: schema,
		logger: logger,
	}
}

// Reconcile 批次表缺失时直接返回ErrConfiguration，不修改文档
func (r *Reconciler) Reconcile(ctx context.Context, rows []map[string]string) (ReconcileReport, error) {
	batch, ok := r.schema.Message(_const.MessageTypeBatchData)
	if !ok || len(batch.Fields) == 0 {
		return ReconcileReport{}, markConfiguration(errors.New("batchData schema has no properties"))
	}
	if _, ok = batch.Lookup(domain.FieldJobID); !ok {
		return ReconcileReport{}, markConfiguration(errors.New("batchData schema has no JobID column"))
	}

	var report ReconcileReport
	err := r.guard.Do(ctx, func(ctx context.Context) error {
		jobs, err := r.store.Load(ctx)
		if err != nil {
			r.logger.Error("failed to load job store, treating as empty", Field{
				Key: "err",
				Val: err,
			})
			jobs = nil
		}

		var merged []domain.JobRecord
		merged, report = mergeBatch(jobs, rows, batch, r.logger)
		return r.store.Save(ctx, merged)
	})
	if err != nil {
		return report, err
	}

	r.logger.Info("reconciliation finished",
		Field{Key: "rows", Val: report.Rows},
		Field{Key: "inserted", Val: report.Inserted},
		Field{Key: "updated", Val: report.Updated},
		Field{Key: "protected", Val: report.Protected},
		Field{Key: "purged", Val: report.Purged},
		Field{Key: "shifted", Val: report.Shifted})
	return report, nil
}

// board 对账过程中的工作集
type board struct {
	jobs      []domain.JobRecord
	protected map[int]struct{}
	maxIndex  int
	report    *ReconcileReport
	logger    Logger
}

func mergeBatch(existing []domain.JobRecord, rows []map[string]string,
	batch domain.MessageSchema, logger Logger) ([]domain.JobRecord, ReconcileReport) {
	report := ReconcileReport{Rows: len(rows)}
	b := &board{
		jobs:      make([]domain.JobRecord, 0, len(existing)+len(rows)),
		protected: map[int]struct{}{},
		maxIndex:  -1,
		report:    &report,
		logger:    logger,
	}

	// 清除Done作业，同一JobID只保留第一条
	byID := make(map[string]int, len(existing))
	for _, job := range existing {
		if job.Status == _const.JobStatusDone {
			report.Purged++
			continue
		}
		if _, dup := byID[job.JobID]; dup {
			logger.Warn("duplicate job in store, keeping first", Field{Key: "job", Val: job.JobID})
			continue
		}
		byID[job.JobID] = len(b.jobs)
		b.jobs = append(b.jobs, job)

		if !job.Status.Protected() {
			continue
		}
		if idx, ok := job.Index(); ok {
			b.protected[idx] = struct{}{}
			if idx > b.maxIndex {
				b.maxIndex = idx
			}
		}
	}

	for _, row := range rows {
		incoming := recordFromRow(row, batch)
		if incoming.JobID == "" {
			report.Skipped++
			logger.Warn("batch row without JobID skipped", Field{Key: "row", Val: row})
			continue
		}

		idx, ok := incoming.Index()
		if !ok {
			report.Sentinel++
			logger.Warn("invalid ScheduleIndex, using sentinel",
				Field{Key: "job", Val: incoming.JobID},
				Field{Key: "value", Val: incoming.ScheduleIndex},
				Field{Key: "sentinel", Val: _const.SentinelScheduleIndex})
			idx = _const.SentinelScheduleIndex
			incoming.SetIndex(idx)
		}

		pos, exists := byID[incoming.JobID]
		if !exists {
			incoming.Status = _const.JobStatusPending
			incoming.SetIndex(b.place(-1, idx, incoming.JobID))
			byID[incoming.JobID] = len(b.jobs)
			b.jobs = append(b.jobs, incoming)
			report.Inserted++
			continue
		}

		current := &b.jobs[pos]
		if current.Status.Protected() {
			report.Protected++
			logger.Info("job is protected, batch row ignored",
				Field{Key: "job", Val: current.JobID},
				Field{Key: "status", Val: current.Status.String()})
			continue
		}

		oldIndex := current.ScheduleIndex
		changed := false
		for _, f := range batch.Fields {
			v := incoming.Get(f.Wire)
			if current.Get(f.Wire) != v {
				current.Set(f.Wire, v)
				changed = true
			}
		}
		if !changed {
			report.Unchanged++
			continue
		}
		report.Updated++

		if current.ScheduleIndex != oldIndex {
			current.SetIndex(b.place(pos, idx, current.JobID))
		}
	}

	b.normalize()

	sort.SliceStable(b.jobs, func(i, j int) bool {
		a, aok := b.jobs[i].Index()
		c, cok := b.jobs[j].Index()
		if aok != cok {
			return aok
		}
		return a < c
	})

	return b.jobs, report
}

func recordFromRow(row map[string]string, batch domain.MessageSchema) domain.JobRecord {
	rec := domain.JobRecord{Fields: make(map[string]string, len(batch.Fields))}
	for _, f := range batch.Fields {
		v := row[f.Key]
		if f.Wire == domain.FieldJobID || f.Wire == domain.FieldScheduleIndex {
			v = strings.TrimSpace(v)
		}
		rec.Set(f.Wire, v)
	}
	return rec
}

// place 返回作业最终的ScheduleIndex，并把占位的非保护作业后移，self是正在重新排位的作业下标
func (b *board) place(self, desired int, jobID string) int {
	if _, hit := b.protected[desired]; hit {
		moved := b.maxIndex + 1
		b.logger.Warn("ScheduleIndex is held by a protected job, moved above it",
			Field{Key: "job", Val: jobID},
			Field{Key: "from", Val: desired},
			Field{Key: "to", Val: moved})
		desired = moved
	}

	type slot struct {
		pos   int
		index int
	}
	var shift []slot
	for pos, job := range b.jobs {
		if pos == self || job.Status.Protected() {
			continue
		}
		if idx, ok := job.Index(); ok && idx >= desired {
			shift = append(shift, slot{pos: pos, index: idx})
		}
	}

	// 从最大的开始后移，避免移动过程中互相覆盖
	sort.Slice(shift, func(i, j int) bool {
		return shift[i].index > shift[j].index
	})
	for _, s := range shift {
		b.jobs[s.pos].SetIndex(b.nextFree(s.index))
		b.report.Shifted++
	}

	return desired
}

// nextFree 大于index且不属于保护作业的最小值
func (b *board) nextFree(index int) int {
	next := index + 1
	for {
		if _, hit := b.protected[next]; !hit {
			return next
		}
		next++
	}
}

// normalize 修复文档中已有的重复排序值，按原有顺序依次顺延
func (b *board) normalize() {
	type slot struct {
		pos   int
		index int
	}
	var slots []slot
	for pos, job := range b.jobs {
		if job.Status.Protected() {
			continue
		}
		if idx, ok := job.Index(); ok {
			slots = append(slots, slot{pos: pos, index: idx})
		}
	}
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].index < slots[j].index
	})

	last := -1
	for _, s := range slots {
		idx := s.index
		_, hit := b.protected[idx]
		if idx <= last || hit {
			idx = b.nextFree(max(last, idx-1))
			b.logger.Warn("duplicate ScheduleIndex repaired",
				Field{Key: "job", Val: b.jobs[s.pos].JobID},
				Field{Key: "from", Val: s.index},
				Field{Key: "to", Val: idx})
			b.jobs[s.pos].ScheduleIndex = strconv.Itoa(idx)
			b.report.Shifted++
		}
		last = idx
	}
}
