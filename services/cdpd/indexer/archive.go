package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cdpcore/core/events"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ArchivedEvent is a committed protocol event persisted for later queries.
type ArchivedEvent struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type       string    `gorm:"index"`
	Collateral string    `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

// Decoded returns the attribute map stored with the event.
func (e ArchivedEvent) Decoded() map[string]string {
	out := make(map[string]string)
	if e.Attributes == "" {
		return out
	}
	_ = json.Unmarshal([]byte(e.Attributes), &out)
	return out
}

// IdempotencyKey stores the response of a mutating request so a retry with
// the same key replays it instead of executing twice.
type IdempotencyKey struct {
	Key       string `gorm:"primaryKey;size:255"`
	RequestID string `gorm:"size:64"`
	Method    string `gorm:"size:8"`
	Path      string `gorm:"size:255"`
	Status    int
	Response  string `gorm:"type:text"`
	CreatedAt time.Time
}

// AutoMigrate performs the schema migrations for the archive.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ArchivedEvent{},
		&IdempotencyKey{},
	)
}

// Archive stores committed events in a sqlite database. It implements
// events.Emitter so it can be attached directly to the system.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the sqlite DSN and migrates the schema.
func Open(dsn string, logger *slog.Logger) (*Archive, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("archive dsn required")
	}
	db, err := gorm.Open(sqlite.Open(trimmed), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return New(db, logger), nil
}

// New wraps an already migrated gorm handle.
func New(db *gorm.DB, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{db: db, logger: logger, now: time.Now}
}

// Emit persists the event. Emitters cannot fail, so write errors are logged.
func (a *Archive) Emit(evt events.Event) {
	if a == nil || a.db == nil || evt == nil {
		return
	}
	if err := a.Record(context.Background(), evt); err != nil {
		a.logger.Warn("archive event", "type", evt.EventType(), "err", err)
	}
}

// Record inserts a single event.
func (a *Archive) Record(ctx context.Context, evt events.Event) error {
	payload := evt.Event()
	if payload == nil {
		return nil
	}
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	row := ArchivedEvent{
		ID:         uuid.New(),
		Type:       payload.Type,
		Collateral: payload.Attribute("collateral"),
		Attributes: string(attrs),
		CreatedAt:  a.now().UTC(),
	}
	return a.db.WithContext(ctx).Create(&row).Error
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type       string
	Collateral string
	Limit      int
}

// List returns the newest archived events first.
func (a *Archive) List(ctx context.Context, filter Filter) ([]ArchivedEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := a.db.WithContext(ctx).Model(&ArchivedEvent{})
	if t := strings.TrimSpace(filter.Type); t != "" {
		query = query.Where("type = ?", t)
	}
	if c := strings.TrimSpace(filter.Collateral); c != "" {
		query = query.Where("collateral = ?", c)
	}
	var rows []ArchivedEvent
	if err := query.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return rows, nil
}

// LookupResponse returns the stored response for key, if any.
func (a *Archive) LookupResponse(ctx context.Context, key string) (*IdempotencyKey, bool, error) {
	var record IdempotencyKey
	err := a.db.WithContext(ctx).First(&record, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return &record, true, nil
}

// StoreResponse records the response for a completed request. A concurrent
// writer that stored the key first wins.
func (a *Archive) StoreResponse(ctx context.Context, record IdempotencyKey) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = a.now().UTC()
	}
	if record.RequestID == "" {
		record.RequestID = uuid.NewString()
	}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
