package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
)

// MemoryImportRepository is an in-memory Store. It is safe for concurrent
// use and keeps units of work isolated until they commit. Data is lost on
// restart; it backs dry runs and tests.
type MemoryImportRepository struct {
	mu     sync.RWMutex
	nextID int64

	accounts      []*model.Account
	creditCards   []*model.CreditCard
	categories    []*model.Category
	subcategories []*model.Subcategory
	tags          []*model.Tag
	transactions  []*model.Transaction
	jobs          map[int64]*model.ImportJob
}

// NewMemoryImportRepository creates an empty in-memory store.
func NewMemoryImportRepository() *MemoryImportRepository {
	return &MemoryImportRepository{jobs: make(map[int64]*model.ImportJob)}
}

var _ Store = (*MemoryImportRepository)(nil)

func (m *MemoryImportRepository) id() int64 {
	m.nextID++
	return m.nextID
}

// AddAccount registers an account for owner.
func (m *MemoryImportRepository) AddAccount(owner uuid.UUID, name string) *model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &model.Account{ID: m.id(), UserID: owner, Name: name}
	m.accounts = append(m.accounts, a)
	return a
}

// AddCreditCard registers a credit card for owner.
func (m *MemoryImportRepository) AddCreditCard(owner uuid.UUID, name string) *model.CreditCard {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &model.CreditCard{ID: m.id(), UserID: owner, Name: name}
	m.creditCards = append(m.creditCards, c)
	return c
}

func (m *MemoryImportRepository) AccountByID(_ context.Context, owner uuid.UUID, id int64) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.ID == id && a.UserID == owner {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryImportRepository) AccountByName(_ context.Context, owner uuid.UUID, name string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.UserID == owner && strings.EqualFold(a.Name, name) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryImportRepository) CreditCardByID(_ context.Context, owner uuid.UUID, id int64) (*model.CreditCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.creditCards {
		if c.ID == id && c.UserID == owner {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryImportRepository) CreditCardByName(_ context.Context, owner uuid.UUID, name string) (*model.CreditCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.creditCards {
		if c.UserID == owner && strings.EqualFold(c.Name, name) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryImportRepository) GetOrCreateCategory(_ context.Context, owner uuid.UUID, name string, categoryType model.CategoryType) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.UserID == owner && c.Type == categoryType && strings.EqualFold(c.Name, name) {
			cp := *c
			return &cp, nil
		}
	}
	c := &model.Category{ID: m.id(), UserID: owner, Name: name, Type: categoryType}
	m.categories = append(m.categories, c)
	cp := *c
	return &cp, nil
}

func (m *MemoryImportRepository) GetOrCreateSubcategory(_ context.Context, owner uuid.UUID, categoryID int64, name string) (*model.Subcategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subcategories {
		if s.UserID == owner && s.CategoryID == categoryID && strings.EqualFold(s.Name, name) {
			cp := *s
			return &cp, nil
		}
	}
	s := &model.Subcategory{ID: m.id(), UserID: owner, CategoryID: categoryID, Name: name}
	m.subcategories = append(m.subcategories, s)
	cp := *s
	return &cp, nil
}

func (m *MemoryImportRepository) GetOrCreateTag(_ context.Context, owner uuid.UUID, name string) (*model.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tags {
		if t.UserID == owner && strings.EqualFold(t.Name, name) {
			cp := *t
			return &cp, nil
		}
	}
	t := &model.Tag{ID: m.id(), UserID: owner, Name: name}
	m.tags = append(m.tags, t)
	cp := *t
	return &cp, nil
}

// Categories returns a snapshot of owner's categories.
func (m *MemoryImportRepository) Categories(owner uuid.UUID) []model.Category {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Category
	for _, c := range m.categories {
		if c.UserID == owner {
			out = append(out, *c)
		}
	}
	return out
}

// Tags returns a snapshot of owner's tags.
func (m *MemoryImportRepository) Tags(owner uuid.UUID) []model.Tag {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Tag
	for _, t := range m.tags {
		if t.UserID == owner {
			out = append(out, *t)
		}
	}
	return out
}

// Transactions returns a snapshot of owner's committed transactions.
func (m *MemoryImportRepository) Transactions(owner uuid.UUID) []model.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Transaction
	for _, t := range m.transactions {
		if t.UserID == owner {
			cp := *t
			cp.TagIDs = append([]int64(nil), t.TagIDs...)
			out = append(out, cp)
		}
	}
	return out
}

// memoryTx buffers writes until the unit of work commits.
type memoryTx struct {
	repo    *MemoryImportRepository
	pending []*model.Transaction
}

func (w *memoryTx) InsertTransaction(_ context.Context, t *model.Transaction) error {
	w.repo.mu.Lock()
	t.ID = w.repo.id()
	w.repo.mu.Unlock()

	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	cp := *t
	w.pending = append(w.pending, &cp)
	return nil
}

func (w *memoryTx) SetTransactionTags(_ context.Context, transactionID int64, tagIDs []int64) error {
	for _, t := range w.pending {
		if t.ID == transactionID {
			t.TagIDs = append(t.TagIDs, tagIDs...)
			return nil
		}
	}
	return ErrNotFound
}

// WithinTx publishes the buffered transactions only when fn succeeds.
func (m *MemoryImportRepository) WithinTx(ctx context.Context, fn func(w TxWriter) error) error {
	tx := &memoryTx{repo: m}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, tx.pending...)
	return nil
}

func (m *MemoryImportRepository) CreateJob(_ context.Context, job *model.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.ID = m.id()
	if job.Status == "" {
		job.Status = model.JobStatusSent
	}
	now := time.Now()
	job.CreatedAt, job.UpdatedAt = now, now
	m.jobs[job.ID] = copyJob(job)
	return nil
}

func (m *MemoryImportRepository) GetJob(_ context.Context, id int64) (*model.ImportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

func (m *MemoryImportRepository) UpdateJob(_ context.Context, job *model.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	job.UpdatedAt = time.Now()
	m.jobs[job.ID] = copyJob(job)
	return nil
}

func (m *MemoryImportRepository) ListJobsByStatus(_ context.Context, status model.JobStatus, updatedBefore time.Time, limit int) ([]*model.ImportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.ImportJob
	for _, job := range m.jobs {
		if job.Status == status && job.UpdatedAt.Before(updatedBefore) {
			out = append(out, copyJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryImportRepository) CountJobsByStatus(_ context.Context, status model.JobStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, job := range m.jobs {
		if job.Status == status {
			count++
		}
	}
	return count, nil
}

func copyJob(job *model.ImportJob) *model.ImportJob {
	cp := *job
	cp.Errors = append([]string(nil), job.Errors...)
	return &cp
}
