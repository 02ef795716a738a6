package dao

import (
	"context"
	"github.com/TimeWtr/plc_bridge/domain"
	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
	"strings"
	"time"
)

var (
	ErrFinishedJobNotFound = errors.New("finished job not found")
	ErrEmptyJobID          = errors.New("empty job id")
)

type FinishedJobDAO interface {
	// Upsert 按JobID插入或合并完工记录，StartTime只在为空时写入
	Upsert(ctx context.Context, patch domain.FinishedJobPatch) (FinishedJobs, error)
	FindByJobID(ctx context.Context, jobID string) (FinishedJobs, error)
	List(ctx context.Context) ([]FinishedJobs, error)
}

type GormFinishedJobDAO struct {
	db *gorm.DB
}

func NewFinishedJobDAO(db *gorm.DB) FinishedJobDAO {
	return &GormFinishedJobDAO{db: db}
}

// InitTables 建表
func InitTables(db *gorm.DB) error {
	return db.AutoMigrate(&FinishedJobs{})
}

func (g *GormFinishedJobDAO) Upsert(ctx context.Context, patch domain.FinishedJobPatch) (FinishedJobs, error) {
	jobID := strings.TrimSpace(patch.JobID)
	if jobID == "" {
		return FinishedJobs{}, ErrEmptyJobID
	}

	var res FinishedJobs
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().Unix()
		var row FinishedJobs
		err := tx.Where("job_id = ?", jobID).First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = FinishedJobs{JobID: jobID, CreatedTime: now}
		case err != nil:
			return err
		}

		apply(&row, patch)
		row.UpdatedTime = now
		if err = tx.Save(&row).Error; err != nil {
			return err
		}

		res = row
		return nil
	})
	if err != nil {
		return FinishedJobs{}, errors.Wrapf(err, "upsert finished job %s", jobID)
	}

	return res, nil
}

func apply(row *FinishedJobs, patch domain.FinishedJobPatch) {
	// 开始时间一旦写入不再覆盖
	if patch.StartTime != nil && row.StartTime == "" {
		row.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		row.EndTime = *patch.EndTime
	}
	if patch.FinishedCartons != nil {
		row.FinishedCartons = *patch.FinishedCartons
	}
	if patch.BoxQtyActual != nil {
		row.BoxQtyActual = *patch.BoxQtyActual
	}
	row.RejectQty += patch.RejectDelta
}

func (g *GormFinishedJobDAO) FindByJobID(ctx context.Context, jobID string) (FinishedJobs, error) {
	var row FinishedJobs
	err := g.db.WithContext(ctx).Where("job_id = ?", jobID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return FinishedJobs{}, errors.Mark(errors.Wrapf(err, "job %s", jobID), ErrFinishedJobNotFound)
	}
	if err != nil {
		return FinishedJobs{}, err
	}

	return row, nil
}

func (g *GormFinishedJobDAO) List(ctx context.Context) ([]FinishedJobs, error) {
	var rows []FinishedJobs
	err := g.db.WithContext(ctx).Order("id ASC").Find(&rows).Error
	return rows, err
}

type FinishedJobs struct {
	// ID 在数据库中的ID信息
	ID int `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	// JobID 作业唯一标识
	JobID string `gorm:"column:job_id;type:varchar(255);uniqueIndex;not null" json:"job_id"`
	// StartTime 换单时间
	StartTime string `gorm:"column:start_time;type:varchar(32);not null;default:''" json:"start_time"`
	// EndTime 切换到下一作业的时间
	EndTime string `gorm:"column:end_time;type:varchar(32);not null;default:''" json:"end_time"`
	// FinishedCartons 完成箱数
	FinishedCartons int `gorm:"column:finished_cartons;type:integer;not null;default:0" json:"finished_cartons"`
	// BoxQtyActual 实际装箱数
	BoxQtyActual int `gorm:"column:box_qty_actual;type:integer;not null;default:0" json:"box_qty_actual"`
	// RejectQty 废品累计
	RejectQty int `gorm:"column:reject_qty;type:integer;not null;default:0" json:"reject_qty"`
	// UpdatedTime 更新时间
	UpdatedTime int64 `gorm:"column:updated_time;type:integer;not null" json:"updated_time"`
	// CreatedTime 创建时间
	CreatedTime int64 `gorm:"column:created_time;type:integer;not null" json:"created_time"`
}

func (FinishedJobs) TableName() string {
	return "finished_jobs"
}
