package service

import (
	"io"
	"log/slog"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/format"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/processor"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/repository"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/resolver"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newImportService(repo *repository.MemoryImportRepository) *ImportService {
	proc := processor.New(resolver.New(repo, testLogger), repo, testLogger)
	return NewImportService(format.DefaultFactories(testLogger), proc, testLogger)
}
