// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/rovshanmuradov/solana-query/internal/storage/models"
)

// Storage определяет интерфейс для работы с хранилищем записей
type Storage interface {
	SaveRecord(ctx context.Context, rec *models.Record) error
	// ListRecords возвращает последние записи, новые первыми. Пустой operation - все.
	ListRecords(ctx context.Context, operation string, limit int) ([]*models.Record, error)
	Close(ctx context.Context) error
}
