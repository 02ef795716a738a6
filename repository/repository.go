package repository

import (
	"context"
	"github.com/TimeWtr/plc_bridge/domain"
	"github.com/TimeWtr/plc_bridge/repository/dao"
	"github.com/cockroachdb/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"os"
	"path/filepath"
)

// JobStore 作业文档整体读写，不提供任何加锁，调用方负责串行化读-改-写
type JobStore interface {
	// Load 文档不存在时返回空切片
	Load(ctx context.Context) ([]domain.JobRecord, error)
	// Save 整体替换文档
	Save(ctx context.Context, jobs []domain.JobRecord) error
}

// FinishedJobRepository 完工记录，只追加或合并
type FinishedJobRepository interface {
	Upsert(ctx context.Context, patch domain.FinishedJobPatch) (domain.FinishedJobRecord, error)
	Get(ctx context.Context, jobID string) (domain.FinishedJobRecord, error)
	List(ctx context.Context) ([]domain.FinishedJobRecord, error)
}

var ErrFinishedJobNotFound = dao.ErrFinishedJobNotFound

// OpenSQLite 打开完工记录库并建表，目录不存在时创建
func OpenSQLite(path string) (*gorm.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", filepath.Dir(path))
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open finished jobs db %s", path)
	}

	if err = dao.InitTables(db); err != nil {
		return nil, errors.Wrap(err, "migrate finished jobs")
	}

	return db, nil
}

type finishedJobRepository struct {
	dao dao.FinishedJobDAO
}

func NewFinishedJobRepository(d dao.FinishedJobDAO) FinishedJobRepository {
	return &finishedJobRepository{dao: d}
}

func (r *finishedJobRepository) Upsert(ctx context.Context, patch domain.FinishedJobPatch) (domain.FinishedJobRecord, error) {
	row, err := r.dao.Upsert(ctx, patch)
	if err != nil {
		return domain.FinishedJobRecord{}, err
	}
	return toDomain(row), nil
}

func (r *finishedJobRepository) Get(ctx context.Context, jobID string) (domain.FinishedJobRecord, error) {
	row, err := r.dao.FindByJobID(ctx, jobID)
	if err != nil {
		return domain.FinishedJobRecord{}, err
	}
	return toDomain(row), nil
}

func (r *finishedJobRepository) List(ctx context.Context) ([]domain.FinishedJobRecord, error) {
	rows, err := r.dao.List(ctx)
	if err != nil {
		return nil, err
	}

	res := make([]domain.FinishedJobRecord, 0, len(rows))
	for _, row := range rows {
		res = append(res, toDomain(row))
	}
	return res, nil
}

func toDomain(row dao.FinishedJobs) domain.FinishedJobRecord {
	return domain.FinishedJobRecord{
		JobID:           row.JobID,
		StartTime:       row.StartTime,
		EndTime:         row.EndTime,
		FinishedCartons: row.FinishedCartons,
		BoxQtyActual:    row.BoxQtyActual,
		RejectQty:       row.RejectQty,
	}
}
