package credstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("credential_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("credential_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("credential_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("credential_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("credential_store.unsupported_no_scheme")
)

// DatabaseStore persists the record as one row per field using GORM.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
	recordKey   string
}

type credentialField struct {
	RecordKey     string `gorm:"column:record_key;primaryKey"`
	FieldName     string `gorm:"column:field_name;primaryKey"`
	FieldValue    string `gorm:"column:field_value;not null;default:''"`
	UpdatedAtUnix int64  `gorm:"column:updated_at_unix;not null"`
}

func (credentialField) TableName() string {
	return "credential_fields"
}

// NewDatabaseStore constructs a GORM-backed store for postgres:// or sqlite:// URLs.
func NewDatabaseStore(ctx context.Context, databaseURL string, recordKey string) (*DatabaseStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("credential_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("credential_store.open.%s: %w: %w", driverLabel, ErrStorage, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&credentialField{}); migrateErr != nil {
		return nil, fmt.Errorf("credential_store.migrate.%s: %w: %w", driverLabel, ErrStorage, migrateErr)
	}
	if strings.TrimSpace(recordKey) == "" {
		recordKey = DefaultRecordKey
	}
	return &DatabaseStore{
		db:          gormDB,
		driverLabel: driverLabel,
		recordKey:   recordKey,
	}, nil
}

// Driver exposes the selected database driver label.
func (store *DatabaseStore) Driver() string {
	return store.driverLabel
}

// Read assembles the record from its field rows.
func (store *DatabaseStore) Read(ctx context.Context) (Record, error) {
	var rows []credentialField
	if err := store.db.WithContext(ctx).Where("record_key = ?", store.recordKey).Find(&rows).Error; err != nil {
		return nil, storageError("read", store.driverLabel, err)
	}
	record := make(Record, len(rows))
	for _, row := range rows {
		record[row.FieldName] = row.FieldValue
	}
	return record, nil
}

// Merge upserts every field of partial in a single statement.
func (store *DatabaseStore) Merge(ctx context.Context, partial Record) error {
	if len(partial) == 0 {
		return nil
	}
	nowUnix := time.Now().UTC().Unix()
	rows := make([]credentialField, 0, len(partial))
	for _, fieldName := range partial.sortedKeys() {
		rows = append(rows, credentialField{
			RecordKey:     store.recordKey,
			FieldName:     fieldName,
			FieldValue:    partial[fieldName],
			UpdatedAtUnix: nowUnix,
		})
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_key"}, {Name: "field_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"field_value", "updated_at_unix"}),
	}).Create(&rows).Error
	if err != nil {
		return storageError("merge", store.driverLabel, err)
	}
	return nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("credential_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("credential_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("credential_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("credential_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
