package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/omnihub/backend/internal/domain/security"
)

// newMockAuditRepository creates a GormAuditRepository with a mocked SQL connection
func newMockAuditRepository(t *testing.T) (*GormAuditRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormAuditRepository(gormDB), mock, mockDB
}

func TestGormAuditRepository_AppendSQL(t *testing.T) {
	repo, mock, mockDB := newMockAuditRepository(t)
	defer mockDB.Close()

	entry := &security.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		UserID:    "u1",
		Platform:  "shopify",
		Action:    security.ActionConnect,
		Success:   true,
	}

	mock.ExpectExec(`INSERT INTO "audit_log"`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Append(context.Background(), entry)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
