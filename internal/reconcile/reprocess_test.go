package reconcile

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclab/labrepair-cli/internal/model"
)

// fakeRunner is an ExtractionRunner with scripted outcomes.
type fakeRunner struct {
	summary *model.ReprocessSummary
	err     error
	calls   int
}

func (f *fakeRunner) Run(context.Context, string) (*model.ReprocessSummary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

func TestReprocessor_Run_DeletesThenRebuilds(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	st.tests = append(st.tests,
		model.TestRecord{ID: "a", UserID: "user-1", TestName: "HBsAg", TestDate: "d1"},
		model.TestRecord{ID: "b", UserID: "user-1", TestName: "ALT", TestDate: "d2"},
	)
	runner := &fakeRunner{summary: &model.ReprocessSummary{RecordsProcessed: 3, TestsCount: 5}}

	summary, err := NewReprocessor(st, runner).Run(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TestsCount)
	assert.Equal(t, 1, runner.calls)

	recs, _ := st.ListTestRecords(ctx, "user-1")
	assert.Empty(t, recs)

	require.Len(t, st.intents, 1)
	intent := st.intents[0]
	assert.Equal(t, model.ReprocessComplete, intent.Phase)
	assert.Equal(t, 2, intent.DeletedCount)
	assert.Equal(t, 5, intent.ExtractedCount)
}

func TestReprocessor_Run_ExtractionFailureLeavesResumableIntent(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	st.tests = append(st.tests,
		model.TestRecord{ID: "a", UserID: "user-1", TestName: "HBsAg", TestDate: "d1"},
	)
	runner := &fakeRunner{err: eris.New("model unavailable")}

	_, err := NewReprocessor(st, runner).Run(ctx, "user-1")
	require.Error(t, err)

	// Delete already happened and must be visible in the intent.
	require.Len(t, st.intents, 1)
	intent := st.intents[0]
	assert.Equal(t, model.ReprocessDeleted, intent.Phase)
	assert.Equal(t, 1, intent.DeletedCount)
	assert.Contains(t, intent.Error, "model unavailable")

	pending, _ := st.ListPendingReprocess(ctx, "user-1")
	assert.Len(t, pending, 1, "interrupted intent must stay resumable")
}

func TestReprocessor_Resume_RetriesExtraction(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	runner := &fakeRunner{err: eris.New("model unavailable")}
	rp := NewReprocessor(st, runner)

	_, err := rp.Run(ctx, "user-1")
	require.Error(t, err)

	// The model recovers; resume finishes the rebuild without another
	// delete pass.
	runner.err = nil
	runner.summary = &model.ReprocessSummary{TestsCount: 4}

	summary, err := rp.Resume(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 4, summary.TestsCount)

	intent := st.intents[0]
	assert.Equal(t, model.ReprocessComplete, intent.Phase)
	assert.Empty(t, intent.Error)

	pending, _ := st.ListPendingReprocess(ctx, "user-1")
	assert.Empty(t, pending)
}

func TestReprocessor_Resume_NothingPending(t *testing.T) {
	st := newMemStore()

	summary, err := NewReprocessor(st, &fakeRunner{}).Resume(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, summary)
}

func TestReprocessor_Resume_PendingIntentRestartsDelete(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	// An intent created but never executed, as after a crash between
	// intent creation and the delete.
	_, err := st.CreateReprocessIntent(ctx, "user-1")
	require.NoError(t, err)
	st.tests = append(st.tests,
		model.TestRecord{ID: "a", UserID: "user-1", TestName: "HBsAg", TestDate: "d1"},
	)

	runner := &fakeRunner{summary: &model.ReprocessSummary{TestsCount: 2}}
	summary, err := NewReprocessor(st, runner).Resume(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TestsCount)

	recs, _ := st.ListTestRecords(ctx, "user-1")
	assert.Empty(t, recs)
	assert.Equal(t, model.ReprocessComplete, st.intents[0].Phase)
	assert.Equal(t, 1, st.intents[0].DeletedCount)
}
