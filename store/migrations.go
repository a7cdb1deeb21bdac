package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/priya-sharma/stitchbook-api/pkg/apperrors"
)

// A migration step scans all existing records and backfills the fields its
// schema version introduced, only where absent. Steps are forward-only and
// idempotent: re-running a step changes nothing.
type migrationStep func(doc Doc)

// migrationSteps maps the target version to the step that reaches it.
// Version 1 is the base schema and has no step.
var migrationSteps = map[int]migrationStep{
	2: migrateToV2,
	3: migrateToV3,
	4: migrateToV4,
	5: migrateToV5,
}

// migrate brings the store from its persisted schema version up to
// SchemaVersion. A fresh store skips straight to the current version.
func (s *LocalStore) migrate() error {
	var info schemaInfo
	err := s.db.First(&info).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		info = schemaInfo{Version: SchemaVersion}
		if createErr := s.db.Create(&info).Error; createErr != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, createErr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}

	if info.Version >= SchemaVersion {
		return nil
	}

	s.log.Info("Migrating orders store", "from", info.Version, "to", SchemaVersion)
	return s.ApplyMigrations(info.Version)
}

// ApplyMigrations applies every step after fromVersion, in order, persisting
// the version after each completed step. A record that fails to migrate is
// logged and skipped; already-migrated records stay valid.
func (s *LocalStore) ApplyMigrations(fromVersion int) error {
	for version := fromVersion + 1; version <= SchemaVersion; version++ {
		step, ok := migrationSteps[version]
		if !ok {
			continue
		}

		if err := s.applyStep(version, step); err != nil {
			return err
		}

		if err := s.db.Model(&schemaInfo{}).Where("1 = 1").Update("version", version).Error; err != nil {
			return fmt.Errorf("%w: failed to record schema version %d: %v", apperrors.ErrStorageUnavailable, version, err)
		}
	}
	return nil
}

func (s *LocalStore) applyStep(version int, step migrationStep) error {
	var rows []orderRecord
	if err := s.db.Order("id asc").Find(&rows).Error; err != nil {
		return fmt.Errorf("%w: migration %d scan failed: %v", apperrors.ErrStorageUnavailable, version, err)
	}

	for _, row := range rows {
		doc, err := decodeDoc(row.Doc)
		if err != nil {
			s.log.Error("Migration skipping undecodable record", "version", version, "id", row.ID, "error", err)
			continue
		}

		step(doc)

		raw, err := json.Marshal(doc)
		if err != nil {
			s.log.Error("Migration skipping unencodable record", "version", version, "id", row.ID, "error", err)
			continue
		}

		if err := s.db.Model(&orderRecord{}).Where("id = ?", row.ID).Update("doc", string(raw)).Error; err != nil {
			s.log.Error("Migration failed to persist record", "version", version, "id", row.ID, "error", err)
			continue
		}
	}
	return nil
}

// ensure sets key only when it is genuinely absent. An existing value is
// never overwritten, including explicit nulls.
func ensure(doc Doc, key string, value interface{}) {
	if _, ok := doc[key]; !ok {
		doc[key] = value
	}
}

// migrateToV2 introduces the financial fields.
func migrateToV2(doc Doc) {
	ensure(doc, "priceTotal", "0")
	ensure(doc, "advancePaid", "0")
	ensure(doc, "balanceAmount", "0")
	ensure(doc, "paymentStatus", "Unpaid")
	ensure(doc, "paymentMethod", "Cash")
	ensure(doc, "notes", "")
}

// migrateToV3 introduces the append-only payment history.
func migrateToV3(doc Doc) {
	ensure(doc, "paymentHistory", []interface{}{})
}

// migrateToV4 introduces the first generation of sync metadata.
func migrateToV4(doc Doc) {
	ensure(doc, "remoteId", nil)
	ensure(doc, "lastSyncedAt", nil)
	ensure(doc, "syncState", "pending")
	ensure(doc, "imageStorageUrls", []interface{}{})
}

// migrateToV5 introduces cloudId/syncStatus, carrying over the v4 values so
// an order synced under the old field names is not re-uploaded as new.
func migrateToV5(doc Doc) {
	if _, ok := doc["cloudId"]; !ok {
		if remoteID, present := doc["remoteId"]; present && remoteID != nil {
			doc["cloudId"] = remoteID
		} else {
			doc["cloudId"] = nil
		}
	}
	if _, ok := doc["syncStatus"]; !ok {
		if state, present := doc["syncState"]; present {
			if str, isString := state.(string); isString && str != "" {
				doc["syncStatus"] = str
				return
			}
		}
		doc["syncStatus"] = "pending"
	}
}
