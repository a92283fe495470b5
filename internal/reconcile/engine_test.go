package reconcile

import (
	"context"
	"strconv"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclab/labrepair-cli/internal/model"
	"github.com/doclab/labrepair-cli/internal/repair"
)

// memStore is an in-memory store.Store used across this package's tests.
// Records keep insertion order, matching the stable order the real
// backends return.
type memStore struct {
	tests     []model.TestRecord
	docs      map[string]*model.MedicalRecord
	intents   []model.ReprocessIntent
	nextID    int
	updateErr map[string]error
	getDocErr error
}

func newMemStore() *memStore {
	return &memStore{
		docs:      make(map[string]*model.MedicalRecord),
		updateErr: make(map[string]error),
	}
}

func (m *memStore) ListTestRecords(_ context.Context, userID string) ([]model.TestRecord, error) {
	var out []model.TestRecord
	for _, r := range m.tests {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) InsertTestRecord(_ context.Context, rec *model.TestRecord) (bool, error) {
	for _, existing := range m.tests {
		if existing.UserID == rec.UserID && existing.TestName == rec.TestName && existing.TestDate == rec.TestDate {
			return false, nil
		}
	}
	if rec.ID == "" {
		m.nextID++
		rec.ID = "t-" + strconv.Itoa(m.nextID)
	}
	m.tests = append(m.tests, *rec)
	return true, nil
}

func (m *memStore) UpdateTestFields(_ context.Context, id string, upd model.FieldUpdate) error {
	if err := m.updateErr[id]; err != nil {
		return err
	}
	for i := range m.tests {
		if m.tests[i].ID != id {
			continue
		}
		if upd.Result != nil {
			m.tests[i].Result = *upd.Result
		}
		if upd.TestSystem != nil {
			m.tests[i].TestSystem = *upd.TestSystem
		}
		if upd.Equipment != nil {
			m.tests[i].Equipment = *upd.Equipment
		}
		m.tests[i].UpdatedAt = upd.UpdatedAt
		return nil
	}
	return eris.Errorf("test record not found: %s", id)
}

func (m *memStore) DeleteTestRecord(_ context.Context, id string) error {
	for i := range m.tests {
		if m.tests[i].ID == id {
			m.tests = append(m.tests[:i], m.tests[i+1:]...)
			return nil
		}
	}
	return eris.Errorf("test record not found: %s", id)
}

func (m *memStore) DeleteUserTests(_ context.Context, userID string) (int, error) {
	var kept []model.TestRecord
	deleted := 0
	for _, r := range m.tests {
		if r.UserID == userID {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.tests = kept
	return deleted, nil
}

func (m *memStore) ListUserIDs(context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range m.tests {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			ids = append(ids, r.UserID)
		}
	}
	return ids, nil
}

func (m *memStore) GetMedicalRecord(_ context.Context, id string) (*model.MedicalRecord, error) {
	if m.getDocErr != nil {
		return nil, m.getDocErr
	}
	return m.docs[id], nil
}

func (m *memStore) ListMedicalRecords(_ context.Context, userID string, _ int) ([]model.MedicalRecord, error) {
	var out []model.MedicalRecord
	for _, d := range m.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memStore) InsertMedicalRecord(_ context.Context, rec *model.MedicalRecord) error {
	m.docs[rec.ID] = rec
	return nil
}

func (m *memStore) CreateReprocessIntent(_ context.Context, userID string) (*model.ReprocessIntent, error) {
	m.nextID++
	intent := model.ReprocessIntent{
		ID:     "intent-" + strconv.Itoa(m.nextID),
		UserID: userID,
		Phase:  model.ReprocessPending,
	}
	m.intents = append(m.intents, intent)
	return &intent, nil
}

func (m *memStore) UpdateReprocessIntent(_ context.Context, intent *model.ReprocessIntent) error {
	for i := range m.intents {
		if m.intents[i].ID == intent.ID {
			m.intents[i] = *intent
			return nil
		}
	}
	return eris.Errorf("reprocess intent not found: %s", intent.ID)
}

func (m *memStore) ListPendingReprocess(_ context.Context, userID string) ([]model.ReprocessIntent, error) {
	var out []model.ReprocessIntent
	for _, in := range m.intents {
		if in.UserID == userID && (in.Phase == model.ReprocessPending || in.Phase == model.ReprocessDeleted) {
			out = append(out, in)
		}
	}
	return out, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

func newTestEngine(st *memStore) *Engine {
	return NewEngine(st, repair.New(repair.DefaultConfig()))
}

func TestReconcileUser_RepairsCorruptedRecord(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	require.NoError(t, st.InsertMedicalRecord(ctx, &model.MedicalRecord{
		ID:     "doc-1",
		UserID: "user-1",
		Content: "Тест-система: Anti-HBc, Abbott\n" +
			"Anti-HB core total: **\n" +
			"Оборудование: Abbott, Alinity i\n" +
			"Результат: ОТРИЦАТЕЛЬНО",
	}))
	_, err := st.InsertTestRecord(ctx, &model.TestRecord{
		ID:             "t-1",
		UserID:         "user-1",
		TestName:       "Anti-HB core total",
		Result:         "**",
		TestSystem:     "** Anti-HBc, Abbott",
		Equipment:      "**",
		TestDate:       "2024-03-15",
		SourceRecordID: "doc-1",
	})
	require.NoError(t, err)

	report, err := newTestEngine(st).ReconcileUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.CleanedCount)

	recs, _ := st.ListTestRecords(ctx, "user-1")
	require.Len(t, recs, 1)
	assert.Equal(t, "ОТРИЦАТЕЛЬНО", recs[0].Result)
	assert.Equal(t, "Anti-HBc, Abbott", recs[0].TestSystem)
	assert.Equal(t, "Abbott, Alinity i", recs[0].Equipment)

	require.Len(t, report.UpdatedTests, 1)
	assert.Equal(t, "**", report.UpdatedTests[0].OldResult)
	assert.Equal(t, "ОТРИЦАТЕЛЬНО", report.UpdatedTests[0].NewResult)
}

func TestReconcileUser_Idempotent(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	require.NoError(t, st.InsertMedicalRecord(ctx, &model.MedicalRecord{
		ID:      "doc-1",
		UserID:  "user-1",
		Content: "HBsAg: **\nРезультат: отрицательно",
	}))
	_, err := st.InsertTestRecord(ctx, &model.TestRecord{
		ID: "t-1", UserID: "user-1", TestName: "HBsAg",
		Result: "**", SourceRecordID: "doc-1",
	})
	require.NoError(t, err)

	eng := newTestEngine(st)
	first, err := eng.ReconcileUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.CleanedCount)

	second, err := eng.ReconcileUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, second.CleanedCount, "second run must find nothing to repair")
}

func TestReconcileUser_KeywordSearchFallback(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	// No labelled result line near the test; a verdict keyword several
	// lines below is the only recovery source.
	require.NoError(t, st.InsertMedicalRecord(ctx, &model.MedicalRecord{
		ID:     "doc-1",
		UserID: "user-1",
		Content: "Anti-HCV: **\n" +
			"Референсные значения: 0 - 1.0\n" +
			"Единицы: МЕ/мл\n" +
			"Метод: ИФА\n" +
			"Заключение: антитела не обнаружено",
	}))
	_, err := st.InsertTestRecord(ctx, &model.TestRecord{
		ID: "t-1", UserID: "user-1", TestName: "Anti-HCV",
		Result: "**", SourceRecordID: "doc-1",
	})
	require.NoError(t, err)

	_, err = newTestEngine(st).ReconcileUser(ctx, "user-1")
	require.NoError(t, err)

	recs, _ := st.ListTestRecords(ctx, "user-1")
	assert.Equal(t, "антитела не обнаружено", recs[0].Result)
}

func TestReconcileUser_SentinelWhenUnrecoverable(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	_, err := st.InsertTestRecord(ctx, &model.TestRecord{
		ID: "t-1", UserID: "user-1", TestName: "Anti-HCV",
		Result: "**", SourceRecordID: "",
	})
	require.NoError(t, err)

	_, err = newTestEngine(st).ReconcileUser(ctx, "user-1")
	require.NoError(t, err)

	recs, _ := st.ListTestRecords(ctx, "user-1")
	assert.Equal(t, "Не указан", recs[0].Result)
}

func TestReconcileUser_FailureStaysLocal(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	for _, id := range []string{"t-1", "t-2"} {
		_, err := st.InsertTestRecord(ctx, &model.TestRecord{
			ID: id, UserID: "user-1", TestName: "Test " + id,
			TestDate: id, Result: "**",
		})
		require.NoError(t, err)
	}
	st.updateErr["t-1"] = eris.New("write conflict")

	report, err := newTestEngine(st).ReconcileUser(ctx, "user-1")
	require.NoError(t, err)

	// The failing record is skipped; the other one still gets repaired.
	assert.Equal(t, 1, report.CleanedCount)
	recs, _ := st.ListTestRecords(ctx, "user-1")
	assert.Equal(t, "**", recs[0].Result)
	assert.Equal(t, "Не указан", recs[1].Result)
}

func TestReconcileUser_OnlyRepairableFieldsChange(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	_, err := st.InsertTestRecord(ctx, &model.TestRecord{
		ID: "t-1", UserID: "user-1", TestName: "ALT",
		Result:          "**",
		ReferenceValues: "** 0-40",
		Units:           "** Ед/л",
	})
	require.NoError(t, err)

	_, err = newTestEngine(st).ReconcileUser(ctx, "user-1")
	require.NoError(t, err)

	recs, _ := st.ListTestRecords(ctx, "user-1")
	assert.Equal(t, "Не указан", recs[0].Result)
	// Reference values and units are outside the repair scope.
	assert.Equal(t, "** 0-40", recs[0].ReferenceValues)
	assert.Equal(t, "** Ед/л", recs[0].Units)
}

func TestLocate(t *testing.T) {
	eng := newTestEngine(newMemStore())
	lines := []string{"Лаборатория КДЛ", "  anti-hcv: отрицательно", "Дата: 15.03.2024"}

	assert.Equal(t, 1, eng.locate(lines, "Anti-HCV"))
	assert.Equal(t, -1, eng.locate(lines, "HBsAg"))
	assert.Equal(t, -1, eng.locate(nil, "ALT"))
	assert.Equal(t, -1, eng.locate(lines, "  "))
}
