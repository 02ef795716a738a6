package plc_bridge

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	_const "github.com/TimeWtr/plc_bridge/const"
	"github.com/TimeWtr/plc_bridge/domain"
)

func TestPad(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		width int
		want  string
	}{
		{name: "shorter", value: "ABC", width: 8, want: "ABC     "},
		{name: "equal", value: "ABCDEFGH", width: 8, want: "ABCDEFGH"},
		{name: "longer", value: "ABCDEFGHIJ", width: 8, want: "ABCDEFGH"},
		{name: "empty", value: "", width: 3, want: "   "},
		{name: "zero width", value: "ABC", width: 0, want: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Pad(tc.value, tc.width)
			assert.Equal(t, tc.want, got)
			assert.Len(t, got, max(tc.width, 0))
		})
	}
}

func TestEncodeDecodeFields(t *testing.T) {
	fields := []domain.FieldSpec{
		{Key: "A", Width: 4},
		{Key: "B", Width: 8},
		{Key: "C", Width: 3},
	}
	values := map[string]string{"A": "AB", "B": "ABCDEFGH", "C": "TOOLONG"}

	encoded := Encode("tag:", fields, values)
	assert.Equal(t, "tag:AB  ABCDEFGHTOO", encoded)
	assert.Len(t, encoded, len("tag:")+15)

	decoded := DecodeFields(fields, strings.TrimPrefix(encoded, "tag:"))
	assert.Equal(t, map[string]string{"A": "AB", "B": "ABCDEFGH", "C": "TOO"}, decoded)
}

func TestDecodeFieldsShortPayload(t *testing.T) {
	fields := []domain.FieldSpec{{Key: "A", Width: 4}, {Key: "B", Width: 4}}
	assert.Equal(t, map[string]string{"A": "XY", "B": ""}, DecodeFields(fields, "XY"))
}

func TestCodecEncodeJobInfo(t *testing.T) {
	c := NewCodec(testSchema())
	current := domain.NewJobRecord("J1", 1, _const.JobStatusCurrent)
	current.Set(domain.FieldMaterialID, "M1")
	current.Set(domain.FieldDesiredYield, "500")
	next := domain.NewJobRecord("J2", 2, _const.JobStatusNext)
	next.Set(domain.FieldLabelBarcode, "BC2")
	now := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)

	msg := c.EncodeJobInfo(&current, &next, now)
	require.True(t, strings.HasPrefix(msg, _const.DefaultJobInfoPrefix))

	s, ok := testSchema().Message(_const.MessageTypeJobInfo)
	require.True(t, ok)
	assert.Len(t, msg, len(_const.DefaultJobInfoPrefix)+s.Width())

	fields := DecodeFields(s.Fields, strings.TrimPrefix(msg, _const.DefaultJobInfoPrefix))
	assert.Equal(t, "J1", fields["JobIDCurrent"])
	assert.Equal(t, "M1", fields["MaterialID"])
	assert.Equal(t, "500", fields["DesiredYieldCurrent"])
	assert.Equal(t, "J2", fields["JobIDNext"])
	assert.Equal(t, "BC2", fields["LBLBARCODENext"])
	assert.Equal(t, "2024-03-05_07:08:09", fields["DateTime"])
}

func TestCodecEncodeJobInfoWithoutNext(t *testing.T) {
	c := NewCodec(testSchema(), WithJobInfoPrefix("JOB:"))
	current := domain.NewJobRecord("J1", 1, _const.JobStatusCurrent)

	msg := c.EncodeJobInfo(&current, nil, time.Now())
	s, _ := testSchema().Message(_const.MessageTypeJobInfo)
	fields := DecodeFields(s.Fields, strings.TrimPrefix(msg, "JOB:"))
	assert.Equal(t, "J1", fields["JobIDCurrent"])
	assert.Equal(t, "", fields["JobIDNext"])
}

func TestCodecMissingFieldFallsBackToWidth10(t *testing.T) {
	schema := domain.NewProtocolSchema(domain.MessageSchema{
		Type: _const.MessageTypeBoxInfo,
		Fields: []domain.FieldSpec{
			{Key: "jobID", Wire: domain.FieldJobID, Width: 6},
			{Key: "LBLBARCODE", Width: 4},
			{Key: "LBLNAME", Width: 4},
			{Key: "DateTime", Width: 10},
		},
	})
	c := NewCodec(schema, WithCodecLogger(NewZapLogger(zaptest.NewLogger(t))))
	job := domain.NewJobRecord("J1", 1, _const.JobStatusCurrent)
	job.Set(domain.FieldMaterialID, "MATERIAL-0001")

	msg := c.EncodeBoxInfo(&job, time.Date(2024, 1, 1, 9, 5, 7, 0, time.UTC))
	assert.Equal(t, "Job:"+"J1    "+"MATERIAL-0"+"    "+"    "+"09  05  07", msg)
}

func TestCodecEncodeBoxInfo(t *testing.T) {
	c := NewCodec(testSchema())
	job := domain.NewJobRecord("J1", 1, _const.JobStatusCurrent)
	job.Set(domain.FieldMaterialID, "M1")
	job.Set(domain.FieldLabelBarcode, "8712345678901")
	job.Set(domain.FieldLabelName, "LABEL")

	msg := c.EncodeBoxInfo(&job, time.Date(2024, 1, 1, 23, 59, 1, 0, time.UTC))
	s, _ := testSchema().Message(_const.MessageTypeBoxInfo)
	fields := DecodeFields(s.Fields, strings.TrimPrefix(msg, _const.DefaultBoxInfoPrefix))
	assert.Equal(t, map[string]string{
		"jobID":      "J1",
		"MaterialID": "M1",
		"LBLBARCODE": "8712345678901",
		"LBLNAME":    "LABEL",
		"DateTime":   "23  59  01",
	}, fields)
}

func TestCodecEncodeMessage(t *testing.T) {
	c := NewCodec(testSchema())
	msg, err := c.EncodeMessage(_const.MessageTypeRejects, "", map[string]string{
		"JobID": "J1", "Reason": "R7", "Qty": "3",
	})
	require.NoError(t, err)
	assert.Equal(t, "J1        R7        3     ", msg)

	_, err = NewCodec(domain.NewProtocolSchema()).EncodeMessage(_const.MessageTypeRejects, "", nil)
	assert.Error(t, err)
}

func TestCodecDecode(t *testing.T) {
	c := NewCodec(testSchema())

	testCases := []struct {
		name    string
		raw     string
		command _const.Command
		tokens  int
		payload string
		fields  map[string]string
		wantErr error
	}{
		{
			name:    "job change lowercase",
			raw:     "jobchange\x00",
			command: _const.CommandJobChange,
			tokens:  1,
			fields:  map[string]string{"JobID": ""},
		},
		{
			name:    "rejects",
			raw:     "  REJECTS   no:J1 R7 3\r\n",
			command: _const.CommandRejects,
			tokens:  4,
			payload: "  no:J1 R7 3",
		},
		{
			name:    "unknown",
			raw:     "HELLO world",
			command: _const.Command("HELLO"),
			tokens:  2,
			payload: "world",
		},
		{
			name:    "request box info",
			raw:     "RequestBoxInfo",
			command: _const.CommandRequestBoxInfo,
			tokens:  1,
		},
		{
			name:    "empty",
			raw:     " \x00",
			wantErr: ErrEmptyMessage,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := c.Decode(tc.raw)
			if tc.wantErr != nil {
				assert.Equal(t, tc.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.command, msg.Command)
			assert.Len(t, msg.Tokens, tc.tokens)
			assert.Equal(t, tc.payload, msg.Payload)
			if tc.fields != nil {
				assert.Equal(t, tc.fields, msg.Fields)
			}
		})
	}
}

func TestCodecDecodeFixedWidthRoundTrip(t *testing.T) {
	c := NewCodec(testSchema())
	s, ok := testSchema().Message(_const.MessageTypeFinishedCartons)
	require.True(t, ok)

	testCases := []struct {
		name   string
		values map[string]string
		want   map[string]string
	}{
		{
			name:   "blank first field",
			values: map[string]string{"JobID": "", "Finished": "12", "BoxQty": "7"},
			want:   map[string]string{"JobID": "", "Finished": "12", "BoxQty": "7"},
		},
		{
			name:   "blank middle field",
			values: map[string]string{"JobID": "J1", "Finished": "", "BoxQty": "7"},
			want:   map[string]string{"JobID": "J1", "Finished": "", "BoxQty": "7"},
		},
		{
			name:   "blank last field",
			values: map[string]string{"JobID": "J1", "Finished": "12", "BoxQty": ""},
			want:   map[string]string{"JobID": "J1", "Finished": "12", "BoxQty": ""},
		},
		{
			name:   "equal to width",
			values: map[string]string{"JobID": "J123456789", "Finished": "123456", "BoxQty": "654321"},
			want:   map[string]string{"JobID": "J123456789", "Finished": "123456", "BoxQty": "654321"},
		},
		{
			name:   "longer than width",
			values: map[string]string{"JobID": "J1234567890AB", "Finished": "1234567", "BoxQty": "7"},
			want:   map[string]string{"JobID": "J123456789", "Finished": "123456", "BoxQty": "7"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw := string(_const.CommandFinishedCart) + " " + Encode("", s.Fields, tc.values) + "\x00"
			msg, err := c.Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, _const.CommandFinishedCart, msg.Command)
			assert.Equal(t, tc.want, msg.Fields)
		})
	}
}
