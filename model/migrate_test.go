package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/kasuganosora/progression/model"
	"github.com/kasuganosora/progression/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Now().UTC()

	require.NoError(t, db.Create(&model.Learner{ID: "l1", DisplayName: "Ada", RegisteredAt: now}).Error)
	require.NoError(t, db.Create(&model.LearnerProgress{LearnerID: "l1", RegisteredAt: now}).Error)
	require.NoError(t, db.Create(&model.ActivityCount{LearnerID: "l1", Kind: "material.completed", Count: 1}).Error)

	grant := &model.XPGrant{LearnerID: "l1", Amount: 50, Reason: model.ReasonMaterialCompleted}
	require.NoError(t, db.Create(grant).Error)
	assert.Greater(t, grant.ID, int64(0))

	require.NoError(t, db.Create(&model.Badge{
		ID: "first-steps", Name: "First Steps",
		Requirement: datatypes.JSON(`{"type":"total_xp","threshold":1}`),
	}).Error)
	require.NoError(t, db.Create(&model.LearnerBadge{LearnerID: "l1", BadgeID: "first-steps", EarnedAt: now}).Error)

	require.NoError(t, db.Create(&model.Mission{
		ID: "daily-reader", Title: "Daily Reader", Type: model.MissionDaily,
		RequirementType: "material.completed", RequirementCount: 3,
	}).Error)
	require.NoError(t, db.Create(&model.MissionProgress{LearnerID: "l1", MissionID: "daily-reader", CycleStart: now}).Error)
	require.NoError(t, db.Create(&model.MissionCompletion{LearnerID: "l1", MissionID: "daily-reader", CycleStart: now, CompletedAt: now}).Error)

	require.NoError(t, db.Create(&model.EventLog{TraceID: "trace-001", Status: model.EventAccepted}).Error)

	var found model.LearnerProgress
	require.NoError(t, db.First(&found, "learner_id = ?", "l1").Error)
	assert.Equal(t, int64(0), found.TotalXP)
}

func TestLearnerBadge_UniquePerLearner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Now().UTC()
	require.NoError(t, db.Create(&model.LearnerBadge{LearnerID: "l1", BadgeID: "b", EarnedAt: now}).Error)
	err := db.Create(&model.LearnerBadge{LearnerID: "l1", BadgeID: "b", EarnedAt: now}).Error
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)
}

func TestXPGrant_CauseKeyUnique(t *testing.T) {
	db := testutil.SetupTestDB(t)
	key := "assignment:7:graded"
	require.NoError(t, db.Create(&model.XPGrant{LearnerID: "l1", Amount: 1, Reason: model.ReasonAssignmentGraded, CauseKey: &key}).Error)
	err := db.Create(&model.XPGrant{LearnerID: "l1", Amount: 1, Reason: model.ReasonAssignmentGraded, CauseKey: &key}).Error
	assert.Error(t, err)

	// NULL cause keys never collide
	require.NoError(t, db.Create(&model.XPGrant{LearnerID: "l1", Amount: 1, Reason: model.ReasonForumPost}).Error)
	require.NoError(t, db.Create(&model.XPGrant{LearnerID: "l1", Amount: 1, Reason: model.ReasonForumPost}).Error)
}
