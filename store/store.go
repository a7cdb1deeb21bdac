package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/priya-sharma/stitchbook-api/pkg/apperrors"
	"github.com/priya-sharma/stitchbook-api/pkg/logger"
)

const (
	// StoreOrders is the store name fired on the ChangeNotifier for order
	// mutations.
	StoreOrders = "orders"

	// SchemaVersion is the current schema version. Opening an older store
	// applies every intermediate migration step in order.
	SchemaVersion = 5
)

// Doc is one stored order document. Fields absent from older schema versions
// are simply missing keys; migrations backfill them without ever overwriting
// a populated value.
type Doc = map[string]interface{}

// Record pairs a document with its store-assigned identifier.
type Record struct {
	ID  uint
	Doc Doc
}

// SyncRun is the persisted outcome of the most recent sync pass.
type SyncRun struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	RanAt    time.Time `gorm:"not null" json:"ran_at"`
	Success  bool      `gorm:"not null" json:"success"`
	Uploaded int       `gorm:"not null" json:"uploaded"`
	Message  string    `json:"message"`
}

// TableName specifies the table name for sync runs
func (SyncRun) TableName() string {
	return "sync_runs"
}

// orderRecord is the row shape for the orders store: an auto-increment
// identifier plus the JSON document.
type orderRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Doc       string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (orderRecord) TableName() string {
	return StoreOrders
}

// schemaInfo is the single-row table holding the applied schema version.
type schemaInfo struct {
	ID      uint `gorm:"primaryKey"`
	Version int  `gorm:"not null"`
}

func (schemaInfo) TableName() string {
	return "schema_info"
}

// Options selects where the local store lives. Path is a sqlite file
// (":memory:" for tests); DatabaseURL, when set, wins and targets postgres.
type Options struct {
	Path        string
	DatabaseURL string
}

// LocalStore is the durable, schema-versioned store for order documents.
// It is the only shared mutable resource in the system and is owned by the
// application root, which hands it to the repository by reference.
type LocalStore struct {
	db       *gorm.DB
	notifier *ChangeNotifier
	log      logger.Logger
}

// Open opens or creates the local store and applies any pending schema
// migrations. Returns ErrStorageUnavailable when the underlying storage
// cannot be opened; that is fatal to the application since no offline mode
// is possible without it.
func Open(opts Options, notifier *ChangeNotifier, log logger.Logger) (*LocalStore, error) {
	var dialector gorm.Dialector
	if opts.DatabaseURL != "" {
		dialector = postgres.Open(opts.DatabaseURL)
	} else {
		dialector = sqlite.Open(opts.Path)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}

	if err := db.AutoMigrate(&orderRecord{}, &schemaInfo{}, &SyncRun{}); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}

	s := &LocalStore{db: db, notifier: notifier, log: log}

	if err := s.migrate(); err != nil {
		return nil, err
	}

	return s, nil
}

// DB exposes the underlying gorm handle for collaborators that keep their
// own tables (the auth service's users table).
func (s *LocalStore) DB() *gorm.DB {
	return s.db
}

// Notifier returns the change notifier owned by this store.
func (s *LocalStore) Notifier() *ChangeNotifier {
	return s.notifier
}

// Insert assigns a new identifier to doc and persists it.
func (s *LocalStore) Insert(doc Doc) (uint, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrWriteFailure, err)
	}

	rec := orderRecord{Doc: string(raw)}
	if err := s.db.Create(&rec).Error; err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrWriteFailure, err)
	}

	s.notifier.Notify(StoreOrders)
	return rec.ID, nil
}

// GetAll returns every record in storage order. Callers sort explicitly.
func (s *LocalStore) GetAll() ([]Record, error) {
	var rows []orderRecord
	if err := s.db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read orders store: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		doc, err := decodeDoc(row.Doc)
		if err != nil {
			// A single corrupt row must not take down the read path.
			s.log.Error("Skipping undecodable record", "id", row.ID, "error", err)
			continue
		}
		records = append(records, Record{ID: row.ID, Doc: doc})
	}
	return records, nil
}

// GetByID returns the record with the given identifier, or found=false.
func (s *LocalStore) GetByID(id uint) (Doc, bool, error) {
	var row orderRecord
	err := s.db.First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read record %d: %w", id, err)
	}

	doc, err := decodeDoc(row.Doc)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Put upserts doc under the given identifier. Callers precondition existence
// with GetByID; Put itself does not distinguish a missed update.
func (s *LocalStore) Put(id uint, doc Doc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrWriteFailure, err)
	}

	res := s.db.Model(&orderRecord{}).Where("id = ?", id).Update("doc", string(raw))
	if res.Error != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrWriteFailure, res.Error)
	}

	s.notifier.Notify(StoreOrders)
	return nil
}

// UpdateDoc runs a read-modify-write against one record inside a single
// storage transaction, so a concurrent reader can never observe a torn
// state between the read and the write. fn receives the current document
// and returns the replacement.
func (s *LocalStore) UpdateDoc(id uint, fn func(Doc) (Doc, error)) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var row orderRecord
		if err := tx.First(&row, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return fmt.Errorf("failed to read record %d: %w", id, err)
		}

		doc, err := decodeDoc(row.Doc)
		if err != nil {
			return err
		}

		next, err := fn(doc)
		if err != nil {
			return err
		}

		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrWriteFailure, err)
		}

		if err := tx.Model(&orderRecord{}).Where("id = ?", id).Update("doc", string(raw)).Error; err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrWriteFailure, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(StoreOrders)
	return nil
}

// SaveSyncRun persists the outcome of a sync pass, success or not.
func (s *LocalStore) SaveSyncRun(run SyncRun) error {
	if err := s.db.Create(&run).Error; err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrWriteFailure, err)
	}
	s.notifier.Notify(SyncRun{}.TableName())
	return nil
}

// LastSyncRun returns the most recent sync run, or found=false when no pass
// has ever run.
func (s *LocalStore) LastSyncRun() (SyncRun, bool, error) {
	var run SyncRun
	err := s.db.Order("id desc").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SyncRun{}, false, nil
	}
	if err != nil {
		return SyncRun{}, false, fmt.Errorf("failed to read sync runs: %w", err)
	}
	return run, true, nil
}

func decodeDoc(raw string) (Doc, error) {
	var doc Doc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("malformed stored document: %w", err)
	}
	return doc, nil
}
