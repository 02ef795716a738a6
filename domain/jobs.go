package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"github.com/TimeWtr/plc_bridge/const"
	"sort"
	"strconv"
	"strings"
)

// 批次文件和作业文档中约定的列名
const (
	FieldJobID         = "JobID"
	FieldScheduleIndex = "ScheduleIndex"
	FieldStatus        = "Status"
	FieldJobRun        = "JobRun"
	FieldMaterialID    = "MaterialID"
	FieldDesiredYield  = "DesiredYield"
	FieldWorkOrderID   = "WorkOrderID"
	FieldMachineID     = "MachineID"
	FieldLabelName     = "LBLNAME"
	FieldLabelBarcode  = "LBLBARCODE"
	FieldIMLBarcode    = "IMLBARCODE"
	FieldIMLLocation   = "IMLBARCODELOC"
	FieldDateTime      = "DateTime"
)

// JobRecord 一条排产作业
type JobRecord struct {
	// JobID 作业唯一标识
	JobID string
	// ScheduleIndex 排序值，原样保存，可能无法解析为数字
	ScheduleIndex string
	// Status 作业状态
	Status _const.JobStatus
	// RawStatus 文档中无法识别的状态文本，保存时原样写回
	RawStatus string
	// Fields 批次中的其他列，原样保存
	Fields map[string]string
}

func NewJobRecord(jobID string, index int, status _const.JobStatus) JobRecord {
	return JobRecord{
		JobID:         jobID,
		ScheduleIndex: strconv.Itoa(index),
		Status:        status,
		Fields:        map[string]string{},
	}
}

// Index 解析ScheduleIndex，非数字或负数返回false
func (j JobRecord) Index() (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(j.ScheduleIndex))
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func (j *JobRecord) SetIndex(index int) {
	j.ScheduleIndex = strconv.Itoa(index)
}

// Get 按列名取值，JobID/ScheduleIndex/Status走结构体字段
func (j JobRecord) Get(name string) string {
	switch name {
	case FieldJobID:
		return j.JobID
	case FieldScheduleIndex:
		return j.ScheduleIndex
	case FieldStatus:
		return j.statusText()
	default:
		return j.Fields[name]
	}
}

func (j JobRecord) statusText() string {
	if j.Status == _const.JobStatusUnknown && j.RawStatus != "" {
		return j.RawStatus
	}
	return j.Status.String()
}

// Set 不处理Status，状态只能由对账和状态机修改
func (j *JobRecord) Set(name, value string) {
	switch name {
	case FieldJobID:
		j.JobID = value
	case FieldScheduleIndex:
		j.ScheduleIndex = value
	case FieldStatus:
	default:
		if j.Fields == nil {
			j.Fields = map[string]string{}
		}
		j.Fields[name] = value
	}
}

func (j JobRecord) Clone() JobRecord {
	c := j
	c.Fields = make(map[string]string, len(j.Fields))
	for k, v := range j.Fields {
		c.Fields[k] = v
	}
	return c
}

// MarshalJSON 输出扁平对象，JobID/ScheduleIndex/Status在前，其余列按名称排序
func (j JobRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(first bool, k, v string) error {
		if !first {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		return nil
	}

	if err := write(true, FieldJobID, j.JobID); err != nil {
		return nil, err
	}
	if err := write(false, FieldScheduleIndex, j.ScheduleIndex); err != nil {
		return nil, err
	}
	if err := write(false, FieldStatus, j.statusText()); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(j.Fields))
	for k := range j.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := write(false, k, j.Fields[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (j *JobRecord) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	raw := map[string]any{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	rec := JobRecord{Fields: make(map[string]string, len(raw))}
	for k, v := range raw {
		s, err := stringify(v)
		if err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
		switch k {
		case FieldJobID:
			rec.JobID = s
		case FieldScheduleIndex:
			rec.ScheduleIndex = s
		case FieldStatus:
			if err := rec.Status.UnmarshalText([]byte(s)); err != nil {
				return err
			}
			if rec.Status == _const.JobStatusUnknown {
				rec.RawStatus = s
			}
		default:
			rec.Fields[k] = s
		}
	}

	*j = rec
	return nil
}

func stringify(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// FinishedJobRecord 作业完工统计
type FinishedJobRecord struct {
	JobID string
	// StartTime 换单时写入，之后不再修改
	StartTime string
	// EndTime 完工箱数上报切换到其他作业时写入
	EndTime string
	// FinishedCartons 控制器上报的完成箱数累计值
	FinishedCartons int
	// BoxQtyActual 控制器上报的实际装箱数
	BoxQtyActual int
	// RejectQty 废品数累计
	RejectQty int
}

// FinishedJobPatch 对完工记录的部分更新，nil表示不修改
type FinishedJobPatch struct {
	JobID           string
	StartTime       *string
	EndTime         *string
	FinishedCartons *int
	BoxQtyActual    *int
	// RejectDelta 累加到RejectQty
	RejectDelta int
}
