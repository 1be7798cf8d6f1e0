// Package resolver links a parsed draft to the owner's entities: accounts and
// cards are looked up, classification entities are matched or created.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/normalizer"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/repository"
)

var ErrSubcategoryWithoutCategory = errors.New("cannot set subcategory without category")

// Defaults are the links a job supplies for rows that do not name their own.
type Defaults struct {
	AccountID    *int64
	CreditCardID *int64
}

// Links is the outcome of resolving one draft.
type Links struct {
	AccountID     *int64
	CreditCardID  *int64
	CategoryID    *int64
	SubcategoryID *int64
	TagIDs        []int64
}

// Resolver resolves draft hints against an EntityStore.
type Resolver struct {
	store  repository.EntityStore
	logger *slog.Logger
}

func New(store repository.EntityStore, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve fills the links for d. Categories, subcategories and tags that do
// not exist yet are created, so calling Resolve twice with the same draft
// yields the same ids.
func (r *Resolver) Resolve(ctx context.Context, owner uuid.UUID, d model.Draft, defaults Defaults) (*Links, error) {
	links := &Links{}
	hints := d.Hints

	accountID, err := r.account(ctx, owner, hints.AccountIdentifier)
	if err != nil {
		return nil, err
	}
	if accountID == nil {
		accountID = defaults.AccountID
	}
	links.AccountID = accountID

	cardID, err := r.creditCard(ctx, owner, hints.CreditCardIdentifier)
	if err != nil {
		return nil, err
	}
	if cardID == nil {
		cardID = defaults.CreditCardID
	}
	links.CreditCardID = cardID

	if name := strings.TrimSpace(hints.CategoryName); name != "" {
		category, err := r.store.GetOrCreateCategory(ctx, owner, name, model.CategoryTypeFor(d.Type))
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", name, err)
		}
		links.CategoryID = &category.ID
	}

	if name := strings.TrimSpace(hints.SubcategoryName); name != "" {
		if links.CategoryID == nil {
			return nil, ErrSubcategoryWithoutCategory
		}
		sub, err := r.store.GetOrCreateSubcategory(ctx, owner, *links.CategoryID, name)
		if err != nil {
			return nil, fmt.Errorf("subcategory %q: %w", name, err)
		}
		links.SubcategoryID = &sub.ID
	}

	for _, name := range TagNames(hints) {
		tag, err := r.store.GetOrCreateTag(ctx, owner, name)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", name, err)
		}
		links.TagIDs = append(links.TagIDs, tag.ID)
	}

	return links, nil
}

// account matches identifier as an id first and then as a name. A nil id
// with a nil error means nothing matched.
func (r *Resolver) account(ctx context.Context, owner uuid.UUID, identifier string) (*int64, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, nil
	}

	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		a, err := r.store.AccountByID(ctx, owner, id)
		switch {
		case err == nil:
			return &a.ID, nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("account %q: %w", identifier, err)
		}
	}

	a, err := r.store.AccountByName(ctx, owner, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		r.logger.DebugContext(ctx, "account identifier not matched", "identifier", identifier)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", identifier, err)
	}
	return &a.ID, nil
}

func (r *Resolver) creditCard(ctx context.Context, owner uuid.UUID, identifier string) (*int64, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, nil
	}

	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		c, err := r.store.CreditCardByID(ctx, owner, id)
		switch {
		case err == nil:
			return &c.ID, nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("credit card %q: %w", identifier, err)
		}
	}

	c, err := r.store.CreditCardByName(ctx, owner, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		r.logger.DebugContext(ctx, "credit card identifier not matched", "identifier", identifier)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credit card %q: %w", identifier, err)
	}
	return &c.ID, nil
}

// TagNames returns the tag names carried by hints: trimmed, non-empty and
// deduplicated without regard to case, in first-seen order.
func TagNames(hints model.ImportHints) []string {
	raw := hints.TagsList
	if len(raw) == 0 && hints.TagsText != "" {
		raw = normalizer.SplitList(hints.TagsText)
	}

	seen := make(map[string]struct{}, len(raw))
	var names []string
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return names
}
