package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedRaw inserts a document without touching the schema version, simulating
// a record written by an older application build.
func seedRaw(t *testing.T, s *LocalStore, doc Doc) uint {
	t.Helper()

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	rec := orderRecord{Doc: string(raw)}
	require.NoError(t, s.db.Create(&rec).Error)
	return rec.ID
}

func v1Doc() Doc {
	return Doc{
		"orderId":        "ORD-001",
		"customerName":   "Asha Rao",
		"bookingDate":    "2024-01-10T00:00:00Z",
		"deliveryDate":   "2024-01-20T00:00:00Z",
		"measurements":   "bust 36, waist 30",
		"productDetails": "silk blouse",
		"images":         []interface{}{},
		"status":         "Pending",
		"createdAt":      "2024-01-10T09:30:00Z",
	}
}

func TestMigrateV1RecordToV5(t *testing.T) {
	s, _ := newTestStore(t)
	id := seedRaw(t, s, v1Doc())

	require.NoError(t, s.ApplyMigrations(1))

	doc, found, err := s.GetByID(id)
	require.NoError(t, err)
	require.True(t, found)

	// v2 financial defaults
	assert.Equal(t, "0", doc["priceTotal"])
	assert.Equal(t, "0", doc["advancePaid"])
	assert.Equal(t, "0", doc["balanceAmount"])
	assert.Equal(t, "Unpaid", doc["paymentStatus"])
	assert.Equal(t, "Cash", doc["paymentMethod"])
	assert.Equal(t, "", doc["notes"])

	// v3 history
	assert.Equal(t, []interface{}{}, doc["paymentHistory"])

	// v4 sync metadata
	assert.Nil(t, doc["remoteId"])
	assert.Nil(t, doc["lastSyncedAt"])
	assert.Equal(t, "pending", doc["syncState"])
	assert.Equal(t, []interface{}{}, doc["imageStorageUrls"])

	// v5 coexisting fields
	assert.Nil(t, doc["cloudId"])
	assert.Equal(t, "pending", doc["syncStatus"])
}

func TestMigrationNeverOverwritesExistingValues(t *testing.T) {
	s, _ := newTestStore(t)

	doc := v1Doc()
	doc["priceTotal"] = "2500"
	doc["advancePaid"] = "500"
	doc["paymentStatus"] = "Partial"
	doc["paymentMethod"] = "UPI"
	doc["notes"] = "urgent"
	doc["paymentHistory"] = []interface{}{
		map[string]interface{}{"kind": "add-payment", "resultingAdvancePaid": "500"},
	}
	doc["remoteId"] = "remote-7"
	doc["syncState"] = "synced"
	id := seedRaw(t, s, doc)

	require.NoError(t, s.ApplyMigrations(1))

	migrated, found, err := s.GetByID(id)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, "2500", migrated["priceTotal"])
	assert.Equal(t, "500", migrated["advancePaid"])
	assert.Equal(t, "Partial", migrated["paymentStatus"])
	assert.Equal(t, "UPI", migrated["paymentMethod"])
	assert.Equal(t, "urgent", migrated["notes"])

	history, ok := migrated["paymentHistory"].([]interface{})
	require.True(t, ok)
	assert.Len(t, history, 1)

	// v5 carries the v4 identity forward so the order is not re-uploaded as new
	assert.Equal(t, "remote-7", migrated["cloudId"])
	assert.Equal(t, "synced", migrated["syncStatus"])
}

func TestMigrationIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	id := seedRaw(t, s, v1Doc())

	require.NoError(t, s.ApplyMigrations(1))

	before, _, err := s.GetByID(id)
	require.NoError(t, err)

	require.NoError(t, s.ApplyMigrations(1))

	after, _, err := s.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMigrationSkipsUndecodableRecordsWithoutCorruptingOthers(t *testing.T) {
	s, _ := newTestStore(t)

	broken := orderRecord{Doc: "{not json"}
	require.NoError(t, s.db.Create(&broken).Error)
	goodID := seedRaw(t, s, v1Doc())

	require.NoError(t, s.ApplyMigrations(1))

	doc, found, err := s.GetByID(goodID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "pending", doc["syncStatus"])
}

func TestPartialMigrationPicksUpWhereItLeftOff(t *testing.T) {
	s, _ := newTestStore(t)

	// A record already at v3: has financial fields and history but no sync
	// metadata.
	doc := v1Doc()
	doc["priceTotal"] = "1200"
	doc["advancePaid"] = "200"
	doc["balanceAmount"] = "1000"
	doc["paymentStatus"] = "Partial"
	doc["paymentMethod"] = "Card"
	doc["notes"] = ""
	doc["paymentHistory"] = []interface{}{}
	id := seedRaw(t, s, doc)

	require.NoError(t, s.ApplyMigrations(3))

	migrated, found, err := s.GetByID(id)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, "1200", migrated["priceTotal"])
	assert.Equal(t, "pending", migrated["syncState"])
	assert.Equal(t, "pending", migrated["syncStatus"])
	assert.Nil(t, migrated["cloudId"])
}
