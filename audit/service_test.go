package audit

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/progression/model"
	"github.com/kasuganosora/progression/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func TestLog_EnqueuedAndFlushed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop(), Options{})

	svc.Log(Entry{
		TraceID:    "trace-123",
		LearnerID:  "l1",
		Kind:       "material.completed",
		Status:     model.EventAccepted,
		Payload:    map[string]string{"reference": "mat-1"},
		IP:         "127.0.0.1",
		DurationMs: 42,
	})

	// Stop flushes remaining entries
	svc.Stop(context.Background())

	var logs []model.EventLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "trace-123", logs[0].TraceID)
	assert.Equal(t, "l1", logs[0].LearnerID)
	assert.Equal(t, model.EventAccepted, logs[0].Status)
	assert.JSONEq(t, `{"reference":"mat-1"}`, string(logs[0].Payload))
	assert.Equal(t, 42, logs[0].DurationMs)
}

func TestLog_BatchFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop(), Options{BatchSize: 10, FlushInterval: time.Hour})

	for i := 0; i < 25; i++ {
		svc.Log(Entry{Kind: "forum.post_created", Status: model.EventAccepted})
	}

	// the two full batches are written without waiting for the ticker
	assert.Eventually(t, func() bool {
		var n int64
		db.Model(&model.EventLog{}).Count(&n)
		return n >= 20
	}, 2*time.Second, 20*time.Millisecond)

	svc.Stop(context.Background())
	var count int64
	db.Model(&model.EventLog{}).Count(&count)
	assert.Equal(t, int64(25), count)
}

func TestLog_TimerFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop(), Options{FlushInterval: 20 * time.Millisecond})
	defer svc.Stop(context.Background())

	svc.Log(Entry{Kind: "quiz.completed", Status: model.EventRejected, Error: "magnitude: must be positive"})
	assert.Eventually(t, func() bool {
		var n int64
		db.Model(&model.EventLog{}).Count(&n)
		return n == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStop_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop(), Options{})
	svc.Stop(context.Background())
	svc.Stop(context.Background())
	// logging after stop drops instead of panicking
	svc.Log(Entry{Kind: "late"})
}

func TestLog_DropsWhenFull(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop(), Options{Buffer: 4})
	for i := 0; i < 100; i++ {
		svc.Log(Entry{Kind: "flood"})
	}
	svc.Stop(context.Background())

	var count int64
	db.Model(&model.EventLog{}).Count(&count)
	assert.LessOrEqual(t, count, int64(100))
	assert.Positive(t, count)
}

func TestRecent_FiltersAndOrders(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop(), Options{})
	svc.Log(Entry{TraceID: "a", LearnerID: "l1"})
	svc.Log(Entry{TraceID: "b", LearnerID: "l2"})
	svc.Log(Entry{TraceID: "c", LearnerID: "l1"})
	svc.Stop(context.Background())

	rows, err := svc.Recent(context.Background(), "l1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c", rows[0].TraceID)
	assert.Equal(t, "a", rows[1].TraceID)

	all, err := svc.Recent(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
