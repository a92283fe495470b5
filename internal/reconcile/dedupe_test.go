package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclab/labrepair-cli/internal/model"
)

func TestDedupeUser_KeepsNewestCopy(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	// Same test extracted three times; store order is oldest first.
	for _, id := range []string{"old", "mid", "new"} {
		st.tests = append(st.tests, model.TestRecord{
			ID: id, UserID: "user-1",
			TestName: "HBsAg", Result: "отрицательно", TestDate: "2024-03-15",
		})
	}

	deleted, err := newTestEngine(st).DedupeUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	recs, _ := st.ListTestRecords(ctx, "user-1")
	require.Len(t, recs, 1)
	assert.Equal(t, "new", recs[0].ID)
}

func TestDedupeUser_KeyIsCaseInsensitive(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	st.tests = append(st.tests,
		model.TestRecord{ID: "a", UserID: "user-1", TestName: "hbsag", Result: "Отрицательно", TestDate: "2024-03-15"},
		model.TestRecord{ID: "b", UserID: "user-1", TestName: "HBsAg", Result: "отрицательно", TestDate: "2024-03-15"},
	)

	deleted, err := newTestEngine(st).DedupeUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestDedupeUser_DifferentDatesSurvive(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	st.tests = append(st.tests,
		model.TestRecord{ID: "a", UserID: "user-1", TestName: "HBsAg", Result: "отрицательно", TestDate: "2024-03-15"},
		model.TestRecord{ID: "b", UserID: "user-1", TestName: "HBsAg", Result: "отрицательно", TestDate: "2024-06-20"},
	)

	deleted, err := newTestEngine(st).DedupeUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestDedupeUser_OtherUsersUntouched(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	st.tests = append(st.tests,
		model.TestRecord{ID: "a", UserID: "user-1", TestName: "HBsAg", Result: "x", TestDate: "d"},
		model.TestRecord{ID: "b", UserID: "user-2", TestName: "HBsAg", Result: "x", TestDate: "d"},
	)

	deleted, err := newTestEngine(st).DedupeUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, deleted)

	recs, _ := st.ListTestRecords(ctx, "user-2")
	assert.Len(t, recs, 1)
}

func TestCleanupUser_CombinesRepairAndDedupe(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	st.tests = append(st.tests,
		model.TestRecord{ID: "a", UserID: "user-1", TestName: "HBsAg", Result: "**", TestDate: "2024-03-15"},
		model.TestRecord{ID: "b", UserID: "user-1", TestName: "ALT", Result: "30", TestDate: "2024-03-15"},
		model.TestRecord{ID: "c", UserID: "user-1", TestName: "ALT", Result: "30", TestDate: "2024-03-15"},
	)

	summary, err := newTestEngine(st).CleanupUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CleanedCount)
	assert.Equal(t, 1, summary.DeletedDuplicates)
	require.Len(t, summary.UpdatedTests, 1)
	assert.Equal(t, "HBsAg", summary.UpdatedTests[0].TestName)
}
