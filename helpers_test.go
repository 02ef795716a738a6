package plc_bridge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	_const "github.com/TimeWtr/plc_bridge/const"
	"github.com/TimeWtr/plc_bridge/domain"
	"github.com/TimeWtr/plc_bridge/repository"
)

func testSchema() domain.ProtocolSchema {
	return domain.NewProtocolSchema(
		domain.MessageSchema{
			Type:     _const.MessageTypeBatchData,
			Filename: "batchData.csv",
			Fields: []domain.FieldSpec{
				{Key: domain.FieldJobID, Width: 10},
				{Key: domain.FieldScheduleIndex, Width: 4},
				{Key: domain.FieldMaterialID, Width: 12},
				{Key: domain.FieldLabelName, Width: 12},
				{Key: domain.FieldLabelBarcode, Width: 14},
				{Key: domain.FieldIMLBarcode, Width: 14},
				{Key: domain.FieldIMLLocation, Width: 4},
				{Key: domain.FieldDesiredYield, Width: 8},
			},
		},
		domain.MessageSchema{
			Type: _const.MessageTypeJobInfo,
			Fields: []domain.FieldSpec{
				{Key: "JobIDCurrent", Wire: domain.FieldJobID, Width: 10},
				{Key: "MaterialID", Wire: domain.FieldMaterialID, Width: 12},
				{Key: "LBLNAME", Wire: domain.FieldLabelName, Width: 12},
				{Key: "LBLBARCODECurrent", Wire: domain.FieldLabelBarcode, Width: 14},
				{Key: "IMLBARCODECurrent", Wire: domain.FieldIMLBarcode, Width: 14},
				{Key: "IMLBARCODELOCCurrent", Wire: domain.FieldIMLLocation, Width: 4},
				{Key: "DesiredYieldCurrent", Wire: domain.FieldDesiredYield, Width: 8},
				{Key: "JobIDNext", Wire: domain.FieldJobID, Width: 10},
				{Key: "LBLBARCODENext", Wire: domain.FieldLabelBarcode, Width: 14},
				{Key: "IMLBARCODENext", Wire: domain.FieldIMLBarcode, Width: 14},
				{Key: "IMLBARCODELOCNext", Wire: domain.FieldIMLLocation, Width: 4},
				{Key: "DesiredYieldNext", Wire: domain.FieldDesiredYield, Width: 8},
				{Key: "DateTime", Width: 19},
			},
		},
		domain.MessageSchema{
			Type: _const.MessageTypeBoxInfo,
			Fields: []domain.FieldSpec{
				{Key: "jobID", Wire: domain.FieldJobID, Width: 10},
				{Key: "MaterialID", Wire: domain.FieldMaterialID, Width: 12},
				{Key: "LBLBARCODE", Wire: domain.FieldLabelBarcode, Width: 14},
				{Key: "LBLNAME", Wire: domain.FieldLabelName, Width: 12},
				{Key: "DateTime", Width: 10},
			},
		},
		domain.MessageSchema{
			Type:     _const.MessageTypeJobChange,
			Filename: "JobChange.json",
			Fields: []domain.FieldSpec{
				{Key: "JobID", Width: 10},
			},
		},
		domain.MessageSchema{
			Type:     _const.MessageTypeRejects,
			Filename: "Rejects.json",
			Fields: []domain.FieldSpec{
				{Key: "JobID", Width: 10},
				{Key: "Reason", Width: 10},
				{Key: "Qty", Width: 6},
			},
		},
		domain.MessageSchema{
			Type:     _const.MessageTypeFinishedCartons,
			Filename: "FinishedCartons.json",
			Fields: []domain.FieldSpec{
				{Key: "JobID", Width: 10},
				{Key: "Finished", Width: 6},
				{Key: "BoxQty", Width: 6},
			},
		},
	)
}

// seedStore 在临时目录创建作业文档
func seedStore(t *testing.T, jobs ...domain.JobRecord) repository.JobStore {
	t.Helper()
	s := NewFileJobStore(filepath.Join(t.TempDir(), "ValidJobs.json"))
	require.NoError(t, s.Save(context.Background(), jobs))
	return s
}

func loadJobs(t *testing.T, s repository.JobStore) []domain.JobRecord {
	t.Helper()
	jobs, err := s.Load(context.Background())
	require.NoError(t, err)
	return jobs
}

func indexOf(t *testing.T, jobs []domain.JobRecord, jobID string) int {
	t.Helper()
	for _, j := range jobs {
		if j.JobID == jobID {
			idx, ok := j.Index()
			require.True(t, ok, "job %s has index %q", jobID, j.ScheduleIndex)
			return idx
		}
	}
	t.Fatalf("job %s not found", jobID)
	return -1
}

func findJob(jobs []domain.JobRecord, jobID string) (domain.JobRecord, bool) {
	for _, j := range jobs {
		if j.JobID == jobID {
			return j, true
		}
	}
	return domain.JobRecord{}, false
}

func batchRow(jobID, index string, extra ...string) map[string]string {
	row := map[string]string{
		domain.FieldJobID:         jobID,
		domain.FieldScheduleIndex: index,
	}
	for i := 0; i+1 < len(extra); i += 2 {
		row[extra[i]] = extra[i+1]
	}
	return row
}
