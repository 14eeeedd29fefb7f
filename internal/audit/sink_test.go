package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/authz-server/internal/logger"
	"github.com/dtroode/authz-server/internal/mocks"
	"github.com/dtroode/authz-server/internal/model"
)

func TestObjectSink_Key(t *testing.T) {
	s := NewObjectSink(nil, "")
	event := model.AuditEvent{
		ID:        "abc",
		Timestamp: time.Date(2026, 1, 2, 23, 30, 0, 0, time.FixedZone("X", -2*3600)),
	}
	assert.Equal(t, "audit/2026/01/03/abc.json", s.Key(event))
}

func TestObjectSink_Write(t *testing.T) {
	storage := mocks.NewObjectStorage(t)
	s := NewObjectSink(storage, "archive")
	event := model.AuditEvent{
		ID:        "e1",
		Type:      model.AuditTokenIssued,
		Outcome:   model.OutcomeSuccess,
		ClientID:  "admin-portal",
		Timestamp: time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC),
	}

	var uploaded model.AuditEvent
	storage.On("Upload", mock.Anything, "archive/2026/05/06/e1.json", mock.Anything, mock.AnythingOfType("int64"), "application/json").
		Run(func(args mock.Arguments) {
			body, err := io.ReadAll(args.Get(2).(io.Reader))
			require.NoError(t, err)
			assert.Equal(t, int64(len(body)), args.Get(3).(int64))
			require.NoError(t, json.Unmarshal(body, &uploaded))
		}).
		Return(nil)

	require.NoError(t, s.Write(context.Background(), event))
	assert.Equal(t, event, uploaded)
}

func TestObjectSink_WriteError(t *testing.T) {
	storage := mocks.NewObjectStorage(t)
	storage.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("unreachable"))

	err := NewObjectSink(storage, "").Write(context.Background(), model.AuditEvent{ID: "x", Timestamp: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to archive audit event")
}

func TestLogSink_Write(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(logger.NewWithFormat(0, "json", &buf))

	err := s.Write(context.Background(), model.AuditEvent{
		ID:      "e2",
		Type:    model.AuditAccountLocked,
		Outcome: model.OutcomeFailure,
		Actor:   "bob",
		Reason:  "too many failures",
		Details: map[string]string{"attempts": "5"},
	})
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "audit event", rec["msg"])
	assert.Equal(t, "audit", rec["component"])
	assert.Equal(t, model.AuditAccountLocked, rec["type"])
	assert.Equal(t, "bob", rec["actor"])
	assert.Equal(t, "5", rec["attempts"])
}
