package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priya-sharma/stitchbook-api/pkg/apperrors"
	"github.com/priya-sharma/stitchbook-api/pkg/logger"
)

func newTestStore(t *testing.T) (*LocalStore, *ChangeNotifier) {
	t.Helper()

	notifier := NewChangeNotifier(logger.NewNopLogger())
	s, err := Open(Options{Path: ":memory:"}, notifier, logger.NewNopLogger())
	require.NoError(t, err)
	return s, notifier
}

func TestOpenSetsCurrentSchemaVersion(t *testing.T) {
	s, _ := newTestStore(t)

	var info schemaInfo
	require.NoError(t, s.db.First(&info).Error)
	assert.Equal(t, SchemaVersion, info.Version)
}

func TestInsertAssignsSequentialIDs(t *testing.T) {
	s, _ := newTestStore(t)

	first, err := s.Insert(Doc{"customerName": "Asha"})
	require.NoError(t, err)
	second, err := s.Insert(Doc{"customerName": "Meera"})
	require.NoError(t, err)

	assert.NotZero(t, first)
	assert.Greater(t, second, first)
}

func TestGetByID(t *testing.T) {
	s, _ := newTestStore(t)

	id, err := s.Insert(Doc{"customerName": "Asha"})
	require.NoError(t, err)

	doc, found, err := s.GetByID(id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Asha", doc["customerName"])

	_, found, err = s.GetByID(9999)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetAllReturnsStorageOrder(t *testing.T) {
	s, _ := newTestStore(t)

	for _, name := range []string{"first", "second", "third"} {
		_, err := s.Insert(Doc{"customerName": name})
		require.NoError(t, err)
	}

	records, err := s.GetAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "first", records[0].Doc["customerName"])
	assert.Equal(t, "third", records[2].Doc["customerName"])
}

func TestPutReplacesDocument(t *testing.T) {
	s, _ := newTestStore(t)

	id, err := s.Insert(Doc{"customerName": "Asha"})
	require.NoError(t, err)

	require.NoError(t, s.Put(id, Doc{"customerName": "Asha Rao", "notes": "updated"}))

	doc, found, err := s.GetByID(id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Asha Rao", doc["customerName"])
	assert.Equal(t, "updated", doc["notes"])
}

func TestUpdateDocIsAtomicReadModifyWrite(t *testing.T) {
	s, _ := newTestStore(t)

	id, err := s.Insert(Doc{"counter": "0"})
	require.NoError(t, err)

	err = s.UpdateDoc(id, func(doc Doc) (Doc, error) {
		doc["counter"] = "1"
		return doc, nil
	})
	require.NoError(t, err)

	doc, _, err := s.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "1", doc["counter"])
}

func TestUpdateDocMissingRecord(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.UpdateDoc(42, func(doc Doc) (Doc, error) { return doc, nil })
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestUpdateDocCallbackErrorAbortsWrite(t *testing.T) {
	s, _ := newTestStore(t)

	id, err := s.Insert(Doc{"customerName": "Asha"})
	require.NoError(t, err)

	boom := errors.New("reject")
	err = s.UpdateDoc(id, func(doc Doc) (Doc, error) {
		doc["customerName"] = "changed"
		return nil, boom
	})
	assert.True(t, errors.Is(err, boom))

	doc, _, err := s.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "Asha", doc["customerName"])
}

func TestMutationsFireChangeNotifier(t *testing.T) {
	s, notifier := newTestStore(t)

	var fired []string
	notifier.Subscribe(func(name string) { fired = append(fired, name) })

	id, err := s.Insert(Doc{"customerName": "Asha"})
	require.NoError(t, err)
	require.NoError(t, s.Put(id, Doc{"customerName": "Asha Rao"}))
	require.NoError(t, s.UpdateDoc(id, func(doc Doc) (Doc, error) { return doc, nil }))

	assert.Equal(t, []string{StoreOrders, StoreOrders, StoreOrders}, fired)
}

func TestSyncRunPersistence(t *testing.T) {
	s, _ := newTestStore(t)

	_, found, err := s.LastSyncRun()
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveSyncRun(SyncRun{Success: false, Uploaded: 0, Message: "synced 0, 2 errors"}))
	require.NoError(t, s.SaveSyncRun(SyncRun{Success: true, Uploaded: 2, Message: "synced 2, 0 errors"}))

	run, found, err := s.LastSyncRun()
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, run.Success)
	assert.Equal(t, 2, run.Uploaded)
	assert.Equal(t, "synced 2, 0 errors", run.Message)
}
