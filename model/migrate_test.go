package model_test

import (
	"testing"
	"time"

	"github.com/kasuganosora/npcsense/model"
	"github.com/kasuganosora/npcsense/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	tr := &model.TransitionLog{
		ID:        "5f0c7d4e-0000-4000-8000-000000000001",
		ZoneID:    1,
		Agent:     "zombie-1",
		FromPhase: "idle",
		ToPhase:   "engaged_los",
		Rule:      "sight_acquired",
		Source:    "p1",
		Sense:     "sight",
		Location:  datatypes.JSON(`{"x":1,"y":2,"z":0}`),
		Belief:    datatypes.JSON(`{"TargetActor":"p1"}`),
	}
	require.NoError(t, db.Create(tr).Error)
	assert.False(t, tr.CreatedAt.IsZero())

	var found model.TransitionLog
	require.NoError(t, db.Where("zone_id = ? AND agent = ?", 1, "zombie-1").First(&found).Error)
	assert.Equal(t, "engaged_los", found.ToPhase)
	assert.JSONEq(t, `{"x":1,"y":2,"z":0}`, string(found.Location))

	al := &model.AuditLog{TraceID: "trace-001", Action: "possess", ZoneID: 1, CreatedAt: time.Now()}
	require.NoError(t, db.Create(al).Error)
	assert.Greater(t, al.ID, int64(0))
}
