// Package processor turns a batch of drafts into persisted transactions. A
// batch is written in full or not at all.
package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/repository"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/resolver"
)

// Resolver links drafts to the owner's entities.
type Resolver interface {
	Resolve(ctx context.Context, owner uuid.UUID, d model.Draft, defaults resolver.Defaults) (*resolver.Links, error)
}

// Options carries the job context a batch is processed under.
type Options struct {
	Defaults resolver.Defaults
	// Origin is stamped on every transaction, usually the uploaded file name.
	Origin string
}

// Result summarizes a processed batch.
type Result struct {
	SuccessCount int
	ErrorCount   int
	Errors       []string
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
}

type Processor struct {
	resolver Resolver
	uow      repository.UnitOfWork
	logger   *slog.Logger
}

func New(r Resolver, uow repository.UnitOfWork, logger *slog.Logger) *Processor {
	return &Processor{resolver: r, uow: uow, logger: logger}
}

// Process validates every draft first and collects one error per failing
// draft as "transaction N: reason", N counting from 1. Nothing is written when
// any draft fails. Otherwise all transactions are inserted in a single unit of
// work; a failure there rolls the whole batch back.
func (p *Processor) Process(ctx context.Context, owner uuid.UUID, drafts []model.Draft, opts Options) *Result {
	result := &Result{TotalIncome: decimal.Zero, TotalExpense: decimal.Zero}

	p.logger.InfoContext(ctx, "processing transactions",
		"user_id", owner,
		"total_count", len(drafts),
		"default_account", opts.Defaults.AccountID != nil,
		"default_credit_card", opts.Defaults.CreditCardID != nil,
	)

	batch := make([]*model.Transaction, 0, len(drafts))
	for i, d := range drafts {
		tx, err := p.prepare(ctx, owner, d, opts)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("transaction %d: %v", i+1, err))
			p.logger.WarnContext(ctx, "transaction processing error",
				"transaction_index", i+1,
				"row", d.Row,
				"transaction_type", d.Type,
				"amount", d.Amount.String(),
				slog.Any("error", err),
			)
			continue
		}
		batch = append(batch, tx)
	}

	if len(result.Errors) > 0 {
		result.ErrorCount = len(result.Errors)
		p.logger.WarnContext(ctx, "transaction processing completed with validation errors",
			"error_count", result.ErrorCount,
			"processed_count", len(batch),
		)
		return result
	}

	err := p.uow.WithinTx(ctx, func(w repository.TxWriter) error {
		for _, tx := range batch {
			tx.Origin = opts.Origin
			tx.RefreshHash()
			if err := w.InsertTransaction(ctx, tx); err != nil {
				return err
			}
			if err := w.SetTransactionTags(ctx, tx.ID, tx.TagIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to save transactions",
			"transaction_count", len(batch),
			slog.Any("error", err),
		)
		result.ErrorCount = len(batch)
		result.Errors = []string{fmt.Sprintf("failed to save transactions: %v", err)}
		return result
	}

	result.SuccessCount = len(batch)
	for _, tx := range batch {
		switch tx.Type {
		case model.TransactionTypeIncome:
			result.TotalIncome = result.TotalIncome.Add(tx.Amount)
		case model.TransactionTypeExpense:
			result.TotalExpense = result.TotalExpense.Add(tx.Amount)
		}
	}

	p.logger.InfoContext(ctx, "successfully saved all transactions",
		"transaction_count", result.SuccessCount,
	)
	return result
}

func (p *Processor) prepare(ctx context.Context, owner uuid.UUID, d model.Draft, opts Options) (*model.Transaction, error) {
	links, err := p.resolver.Resolve(ctx, owner, d, opts.Defaults)
	if err != nil {
		return nil, err
	}

	tx := model.NewTransaction(owner, d)
	tx.AccountID = links.AccountID
	tx.CreditCardID = links.CreditCardID
	tx.CategoryID = links.CategoryID
	tx.SubcategoryID = links.SubcategoryID
	tx.TagIDs = links.TagIDs
	tx.AssignInstallmentGroup()

	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}
