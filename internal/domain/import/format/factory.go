package format

import (
	"errors"
	"fmt"
	"log/slog"
)

var ErrNoHandlerFound = errors.New("no handler found for file")

// FileKind is the container format of an upload.
type FileKind string

const (
	KindCSV  FileKind = "csv"
	KindXLSX FileKind = "xlsx"
	KindJSON FileKind = "json"
)

// Factory picks the handler for a file of one kind. Handlers are tried in
// registration order; the fallback, when set, takes files nobody claimed.
type Factory struct {
	Kind     FileKind
	handlers []Handler
	fallback Handler
	logger   *slog.Logger
}

// NewFactory builds a factory. fallback may be nil.
func NewFactory(kind FileKind, logger *slog.Logger, fallback Handler, handlers ...Handler) *Factory {
	return &Factory{Kind: kind, handlers: handlers, fallback: fallback, logger: logger}
}

// NewCSVFactory tries the Banco Inter layouts before the generic reader.
func NewCSVFactory(logger *slog.Logger) *Factory {
	generic := NewGenericCSVHandler(logger)
	return NewFactory(KindCSV, logger, generic,
		NewInterStatementCSVHandler(logger),
		NewInterCreditCardCSVHandler(logger),
		generic,
	)
}

func NewJSONFactory(logger *slog.Logger) *Factory {
	generic := NewGenericJSONHandler(logger)
	return NewFactory(KindJSON, logger, generic, generic)
}

// NewXLSXFactory has no fallback: unknown spreadsheets are rejected.
func NewXLSXFactory(logger *slog.Logger) *Factory {
	return NewFactory(KindXLSX, logger, nil, NewBBStatementXLSXHandler(logger))
}

// CreateHandler returns the first handler whose CanHandle accepts path.
func (f *Factory) CreateHandler(path string) (Handler, error) {
	for _, h := range f.handlers {
		if f.canHandle(h, path) {
			f.logger.Debug("handler selected", "kind", f.Kind, "handler", HandlerName(h))
			return h, nil
		}
	}

	if f.fallback != nil {
		f.logger.Debug("no handler matched, using fallback", "kind", f.Kind, "handler", HandlerName(f.fallback))
		return f.fallback, nil
	}

	return nil, fmt.Errorf("%w: %s file %s", ErrNoHandlerFound, f.Kind, path)
}

// canHandle treats a panicking detector as a handler that does not match.
func (f *Factory) canHandle(h Handler, path string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Debug("handler detection panicked",
				"handler", HandlerName(h),
				"panic", r,
			)
			ok = false
		}
	}()
	return h.CanHandle(path)
}

// Factories holds one factory per file kind.
type Factories map[FileKind]*Factory

// DefaultFactories registers the built-in layouts.
func DefaultFactories(logger *slog.Logger) Factories {
	return Factories{
		KindCSV:  NewCSVFactory(logger),
		KindJSON: NewJSONFactory(logger),
		KindXLSX: NewXLSXFactory(logger),
	}
}
