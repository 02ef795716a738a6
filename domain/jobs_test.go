package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_const "github.com/TimeWtr/plc_bridge/const"
)

func TestJobRecordUnmarshalLegacyDocument(t *testing.T) {
	doc := `[{"JobID":"A1","ScheduleIndex":3,"Status":"Current","MaterialID":null,"DesiredYield":1200,"LBLNAME":"Cup"}]`

	var jobs []JobRecord
	require.NoError(t, json.Unmarshal([]byte(doc), &jobs))
	require.Len(t, jobs, 1)

	j := jobs[0]
	assert.Equal(t, "A1", j.JobID)
	assert.Equal(t, "3", j.ScheduleIndex)
	assert.Equal(t, _const.JobStatusCurrent, j.Status)
	assert.Equal(t, "", j.Get(FieldMaterialID))
	assert.Equal(t, "1200", j.Get(FieldDesiredYield))
	assert.Equal(t, "Cup", j.Get(FieldLabelName))
}

func TestJobRecordMarshalOrder(t *testing.T) {
	j := NewJobRecord("B7", 2, _const.JobStatusPending)
	j.Set(FieldMaterialID, "M-1")
	j.Set(FieldDesiredYield, "500")

	b, err := json.Marshal(j)
	require.NoError(t, err)
	assert.Equal(t, `{"JobID":"B7","ScheduleIndex":"2","Status":"Pending","DesiredYield":"500","MaterialID":"M-1"}`, string(b))

	var back JobRecord
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, j, back)
}

func TestJobRecordKeepsUnknownStatus(t *testing.T) {
	doc := `{"JobID":"H1","ScheduleIndex":"4","Status":"OnHold"}`

	var j JobRecord
	require.NoError(t, json.Unmarshal([]byte(doc), &j))
	assert.Equal(t, _const.JobStatusUnknown, j.Status)
	assert.Equal(t, "OnHold", j.Get(FieldStatus))

	b, err := json.Marshal(j)
	require.NoError(t, err)
	assert.Equal(t, doc, string(b))
}

func TestJobRecordIndex(t *testing.T) {
	j := NewJobRecord("X", 0, _const.JobStatusPending)
	idx, ok := j.Index()
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	j.ScheduleIndex = "abc"
	_, ok = j.Index()
	assert.False(t, ok)

	j.ScheduleIndex = "-4"
	_, ok = j.Index()
	assert.False(t, ok)
}

func TestJobRecordCloneIsDeep(t *testing.T) {
	j := NewJobRecord("X", 1, _const.JobStatusPending)
	j.Set(FieldLabelName, "a")
	c := j.Clone()
	c.Set(FieldLabelName, "b")
	assert.Equal(t, "a", j.Get(FieldLabelName))
}

func TestProtocolSchemaDefaultsWire(t *testing.T) {
	p := NewProtocolSchema(MessageSchema{
		Type:   _const.MessageTypeBoxInfo,
		Fields: []FieldSpec{{Key: "jobID", Wire: "JobID", Width: 8}, {Key: "MaterialID", Width: 4}},
	})

	s, ok := p.Message(_const.MessageTypeBoxInfo)
	require.True(t, ok)
	assert.Equal(t, []string{"jobID", "MaterialID"}, s.Keys())
	assert.Equal(t, 12, s.Width())

	f, ok := s.Lookup("MaterialID")
	require.True(t, ok)
	assert.Equal(t, "MaterialID", f.Wire)

	s.Fields[0].Width = 99
	again, _ := p.Message(_const.MessageTypeBoxInfo)
	assert.Equal(t, 8, again.Fields[0].Width)
}
