// Package service provides the import orchestration logic: picking a
// handler for an uploaded file, parsing it and persisting the batch, and
// driving import jobs through their lifecycle.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/format"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/processor"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/resolver"
	"github.com/FACorreiaa/smart-finance-importer/pkg/metrics"
	"github.com/FACorreiaa/smart-finance-importer/pkg/money"
)

const tracerName = "github.com/FACorreiaa/smart-finance-importer/internal/domain/import/service"

// ImportResult contains the result of an import operation
type ImportResult struct {
	SuccessCount int
	ErrorCount   int
	Errors       []string
	HandlerType  string
	// SkippedRows counts rows the handler could not parse. They are logged
	// and listed in Skipped but do not count as errors.
	SkippedRows  int
	Skipped      []string
	TotalRows    int
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
}

// BatchProcessor validates and persists parsed drafts.
type BatchProcessor interface {
	Process(ctx context.Context, owner uuid.UUID, drafts []model.Draft, opts processor.Options) *processor.Result
}

// ImportService turns one file into persisted transactions.
type ImportService struct {
	factories format.Factories
	processor BatchProcessor
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewImportService creates a new import service
func NewImportService(factories format.Factories, proc BatchProcessor, logger *slog.Logger) *ImportService {
	return &ImportService{
		factories: factories,
		processor: proc,
		tracer:    otel.Tracer(tracerName),
		logger:    logger,
	}
}

// WithMetrics adds Prometheus instrumentation to the import service
func (s *ImportService) WithMetrics(m *metrics.Metrics) *ImportService {
	s.metrics = m
	return s
}

// DetectFileKind maps a file name to its container format by extension. The
// boolean is false when the extension is unknown; CSV is returned then, as
// uploads made before format detection existed were all CSV.
func DetectFileKind(name string) (format.FileKind, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return format.KindCSV, true
	case ".xlsx":
		return format.KindXLSX, true
	case ".json":
		return format.KindJSON, true
	default:
		return format.KindCSV, false
	}
}

// ImportTransactions parses the file at path and processes its drafts. The
// format is detected from fileName, or from path when fileName is empty.
// job may be nil; when set it supplies default links and the origin stamp.
//
// Row and validation failures are reported in the result. An error is
// returned only when the file cannot be read or no handler accepts it.
func (s *ImportService) ImportTransactions(ctx context.Context, owner uuid.UUID, path, fileName string, job *model.ImportJob) (*ImportResult, error) {
	if fileName == "" {
		fileName = filepath.Base(path)
	}

	ctx, span := s.tracer.Start(ctx, "ImportService.ImportTransactions",
		trace.WithAttributes(
			attribute.String("import.file_name", fileName),
			attribute.String("import.user_id", owner.String()),
		),
	)
	defer span.End()

	started := time.Now()

	kind, known := DetectFileKind(fileName)
	if !known {
		s.logger.WarnContext(ctx, "unknown file extension, treating as csv",
			"file_name", fileName,
			"extension", filepath.Ext(fileName),
		)
	}
	span.SetAttributes(attribute.String("import.kind", string(kind)))

	factory, ok := s.factories[kind]
	if !ok {
		err := fmt.Errorf("%w: no factory registered for %s", format.ErrNoHandlerFound, kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	handler, err := factory.CreateHandler(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	handlerName := format.HandlerName(handler)
	span.SetAttributes(attribute.String("import.handler", handlerName))

	s.logger.InfoContext(ctx, "importing file",
		"file_name", fileName,
		"kind", kind,
		"handler", handlerName,
	)

	parsed, err := handler.Parse(ctx, path, owner)
	if err != nil {
		err = fmt.Errorf("failed to parse %s: %w", fileName, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	opts := processor.Options{}
	if job != nil {
		opts.Defaults = resolver.Defaults{AccountID: job.AccountID, CreditCardID: job.CreditCardID}
		opts.Origin = job.FileName
	}

	processed := s.processor.Process(ctx, owner, parsed.Drafts, opts)

	result := &ImportResult{
		SuccessCount: processed.SuccessCount,
		ErrorCount:   processed.ErrorCount,
		Errors:       processed.Errors,
		HandlerType:  handlerName,
		SkippedRows:  len(parsed.Skipped),
		TotalRows:    parsed.TotalRows,
		TotalIncome:  processed.TotalIncome,
		TotalExpense: processed.TotalExpense,
	}
	for _, skipped := range parsed.Skipped {
		result.Skipped = append(result.Skipped, skipped.Error())
	}

	s.metrics.ObserveImport(handlerName, result.SuccessCount, result.ErrorCount, result.SkippedRows, time.Since(started))

	span.SetAttributes(
		attribute.Int("import.success_count", result.SuccessCount),
		attribute.Int("import.error_count", result.ErrorCount),
		attribute.Int("import.skipped_rows", result.SkippedRows),
	)

	s.logger.InfoContext(ctx, "import finished",
		"file_name", fileName,
		"handler", handlerName,
		"total_rows", result.TotalRows,
		"success_count", result.SuccessCount,
		"error_count", result.ErrorCount,
		"skipped_rows", result.SkippedRows,
		"total_income", money.FormatBRL(result.TotalIncome),
		"total_expense", money.FormatBRL(result.TotalExpense),
		"duration", time.Since(started),
	)

	return result, nil
}
