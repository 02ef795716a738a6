package plc_bridge

import (
	"context"
	"github.com/TimeWtr/plc_bridge/const"
	"github.com/TimeWtr/plc_bridge/domain"
	"github.com/TimeWtr/plc_bridge/repository"
)

// Transition 一次换单后的作业状态
type Transition struct {
	// Current 换单后的当前作业，没有时为nil
	Current *domain.JobRecord
	// Next 换单后的下一作业，没有时为nil
	Next *domain.JobRecord
	// Retired 本次被标记为Done的作业
	Retired []string
	// Changed 文档是否被修改
	Changed bool
}

// Lifecycle 作业状态机，Pending -> Next -> Current -> Done
type Lifecycle struct {
	store  repository.JobStore
	guard  *Guard
	logger Logger
}

func NewLifecycle(store repository.JobStore, guard *Guard, logger Logger) *Lifecycle {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Lifecycle{
		store:  store,
		guard:  guard,
		logger: logger,
	}
}

// Advance 执行一次换单，状态没有变化时不写文档
func (l *Lifecycle) Advance(ctx context.Context) (Transition, error) {
	var tr Transition
	err := l.guard.Do(ctx, func(ctx context.Context) error {
		jobs, err := l.store.Load(ctx)
		if err != nil {
			l.logger.Error("failed to load job store, treating as empty", Field{
				Key: "err",
				Val: err,
			})
			jobs = nil
		}

		tr = l.advance(jobs)
		if !tr.Changed {
			return nil
		}
		return l.store.Save(ctx, jobs)
	})
	if err != nil {
		return Transition{}, err
	}

	return tr, nil
}

// Snapshot 只读取当前和下一作业
func (l *Lifecycle) Snapshot(ctx context.Context) (Transition, error) {
	var tr Transition
	err := l.guard.Do(ctx, func(ctx context.Context) error {
		jobs, err := l.store.Load(ctx)
		if err != nil {
			return err
		}
		tr.Current, tr.Next = activeJobs(jobs)
		return nil
	})
	return tr, err
}

// advance 原地修改jobs，ScheduleIndex无法解析的作业不参与换单
func (l *Lifecycle) advance(jobs []domain.JobRecord) Transition {
	var tr Transition
	eligible := func(status _const.JobStatus) func(domain.JobRecord) bool {
		return func(job domain.JobRecord) bool {
			return job.Status == status
		}
	}

	current := newPendingQueue(jobs, eligible(_const.JobStatusCurrent)).next()
	next := newPendingQueue(jobs, eligible(_const.JobStatusNext)).next()
	pending := newPendingQueue(jobs, eligible(_const.JobStatusPending))

	if current == -1 && next == -1 {
		if pos := pending.next(); pos != -1 {
			l.promote(&jobs[pos], _const.JobStatusCurrent)
			tr.Changed = true
		}
		if pos := pending.next(); pos != -1 {
			l.promote(&jobs[pos], _const.JobStatusNext)
			tr.Changed = true
		}
		if !tr.Changed {
			l.logger.Info("no pending jobs to promote")
		}
		tr.Current, tr.Next = activeJobs(jobs)
		return tr
	}

	if current != -1 {
		l.promote(&jobs[current], _const.JobStatusDone)
		tr.Retired = append(tr.Retired, jobs[current].JobID)
	}
	if next != -1 {
		l.promote(&jobs[next], _const.JobStatusCurrent)
	}
	if pos := pending.next(); pos != -1 {
		l.promote(&jobs[pos], _const.JobStatusNext)
	} else {
		l.logger.Info("no pending jobs left for next")
	}
	tr.Changed = true
	tr.Current, tr.Next = activeJobs(jobs)
	return tr
}

func (l *Lifecycle) promote(job *domain.JobRecord, to _const.JobStatus) {
	l.logger.Info("job status changed",
		Field{Key: "job", Val: job.JobID},
		Field{Key: "from", Val: job.Status.String()},
		Field{Key: "to", Val: to.String()})
	job.Status = to
}

// activeJobs 返回文档中第一条Current和Next作业的副本
func activeJobs(jobs []domain.JobRecord) (current, next *domain.JobRecord) {
	for _, job := range jobs {
		switch {
		case job.Status == _const.JobStatusCurrent && current == nil:
			c := job.Clone()
			current = &c
		case job.Status == _const.JobStatusNext && next == nil:
			n := job.Clone()
			next = &n
		}
	}
	return current, next
}
