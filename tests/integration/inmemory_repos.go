package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stellarpay-ledger/internal/core/domain"
	"stellarpay-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// lockRegistry hands out one mutex per row key so the in-memory repos can
// emulate SELECT ... FOR UPDATE row locking.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*sync.Mutex)}
}

func (r *lockRegistry) get(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// --- In-Memory Transactor ---

// memTx implements pgx.Tx over the lock registry: row locks taken during the
// transaction are held until Commit or Rollback, like real pgx transactions.
type memTx struct {
	registry *lockRegistry
	mu       sync.Mutex
	held     map[string]*sync.Mutex
	finished bool
}

type inMemoryTransactor struct {
	registry *lockRegistry
}

func newInMemoryTransactor(registry *lockRegistry) *inMemoryTransactor {
	return &inMemoryTransactor{registry: registry}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &memTx{registry: t.registry, held: make(map[string]*sync.Mutex)}, nil
}

// lockRow blocks until this transaction holds the row lock for key.
// Re-acquiring a key already held by the same transaction is a no-op.
func (t *memTx) lockRow(key string) {
	t.mu.Lock()
	if _, ok := t.held[key]; ok {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	l := t.registry.get(key)
	l.Lock()

	t.mu.Lock()
	t.held[key] = l
	t.mu.Unlock()
}

func (t *memTx) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	for _, l := range t.held {
		l.Unlock()
	}
	t.held = nil
}

func (t *memTx) Commit(ctx context.Context) error   { t.release(); return nil }
func (t *memTx) Rollback(ctx context.Context) error { t.release(); return nil }

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }

// --- In-Memory Account Repo ---

type inMemoryAccountRepo struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.Account
	registry *lockRegistry
}

func newInMemoryAccountRepo(registry *lockRegistry) *inMemoryAccountRepo {
	return &inMemoryAccountRepo{
		accounts: make(map[uuid.UUID]*domain.Account),
		registry: registry,
	}
}

func (r *inMemoryAccountRepo) Create(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Username == account.Username {
			return fmt.Errorf("username already exists")
		}
		if existing.MSISDN == account.MSISDN {
			return fmt.Errorf("msisdn already exists")
		}
	}
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *inMemoryAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *inMemoryAccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryAccountRepo) GetByMSISDN(ctx context.Context, msisdn string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.MSISDN == msisdn {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryAccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	if mt, ok := tx.(*memTx); ok {
		mt.lockRow("account:" + id.String())
	}
	return r.GetByID(ctx, id)
}

func (r *inMemoryAccountRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance, reserved int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("account not found")
	}
	a.Balance = balance
	a.Reserved = reserved
	a.UpdatedAt = time.Now()
	return nil
}

func (r *inMemoryAccountRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("account not found")
	}
	a.Status = domain.AccountStatusDeactivated
	a.UpdatedAt = time.Now()
	return nil
}

// --- In-Memory Entry Repo ---

type inMemoryEntryRepo struct {
	mu       sync.RWMutex
	entries  map[uuid.UUID]*domain.LedgerEntry
	order    []uuid.UUID
	registry *lockRegistry
}

func newInMemoryEntryRepo(registry *lockRegistry) *inMemoryEntryRepo {
	return &inMemoryEntryRepo{
		entries:  make(map[uuid.UUID]*domain.LedgerEntry),
		registry: registry,
	}
}

func (r *inMemoryEntryRepo) Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.IdempotencyKey != "" {
		for _, e := range r.entries {
			if e.IdempotencyKey == entry.IdempotencyKey {
				return fmt.Errorf("duplicate idempotency key")
			}
		}
	}
	cp := *entry
	r.entries[entry.ID] = &cp
	r.order = append(r.order, entry.ID)
	return nil
}

func (r *inMemoryEntryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *inMemoryEntryRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.LedgerEntry, error) {
	if mt, ok := tx.(*memTx); ok {
		mt.lockRow("entry:" + id.String())
	}
	return r.GetByID(ctx, id)
}

func (r *inMemoryEntryRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.IdempotencyKey == key {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryEntryRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.EntryStatus, externalRef, failureReason *string, confirmedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("entry not found")
	}
	e.Status = status
	if externalRef != nil {
		e.ExternalRef = externalRef
	}
	if failureReason != nil {
		e.FailureReason = failureReason
	}
	if confirmedAt != nil {
		e.ConfirmedAt = confirmedAt
	}
	return nil
}

func (r *inMemoryEntryRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.LedgerEntry
	for _, id := range r.order {
		e := r.entries[id]
		if e.Status == domain.EntryStatusPending && e.CreatedAt.Before(cutoff) {
			result = append(result, *e)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (r *inMemoryEntryRepo) ListByAccount(ctx context.Context, params ports.EntryListParams) ([]domain.LedgerEntry, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.LedgerEntry
	for _, id := range r.order {
		e := r.entries[id]
		if !e.BelongsTo(params.AccountID) {
			continue
		}
		if params.Status != nil && e.Status != *params.Status {
			continue
		}
		if params.Kind != nil && e.Kind != *params.Kind {
			continue
		}
		if params.From != nil && e.CreatedAt.Unix() < *params.From {
			continue
		}
		if params.To != nil && e.CreatedAt.Unix() > *params.To {
			continue
		}
		result = append(result, *e)
	}
	// Newest first, like the SQL repo
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	total := int64(len(result))

	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.LedgerEntry{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

// --- In-Memory Transfer Repo ---

type inMemoryTransferRepo struct {
	mu      sync.RWMutex
	intents map[uuid.UUID]*domain.TransferIntent
}

func newInMemoryTransferRepo() *inMemoryTransferRepo {
	return &inMemoryTransferRepo{intents: make(map[uuid.UUID]*domain.TransferIntent)}
}

func (r *inMemoryTransferRepo) Create(ctx context.Context, tx pgx.Tx, intent *domain.TransferIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *intent
	r.intents[intent.CorrelationID] = &cp
	return nil
}

func (r *inMemoryTransferRepo) GetByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.TransferIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.intents[correlationID]
	if !ok {
		return nil, nil
	}
	cp := *i
	return &cp, nil
}

func (r *inMemoryTransferRepo) GetByEntryID(ctx context.Context, entryID uuid.UUID) (*domain.TransferIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, i := range r.intents {
		if i.OutEntryID == entryID || i.InEntryID == entryID {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransferRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, correlationID uuid.UUID, status domain.TransferStatus, completedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.intents[correlationID]
	if !ok {
		return fmt.Errorf("transfer intent not found")
	}
	i.Status = status
	if completedAt != nil {
		i.CompletedAt = completedAt
	}
	return nil
}

// --- In-Memory Idempotency Repo ---

type inMemoryIdempotencyRepo struct {
	mu   sync.RWMutex
	logs map[string]*domain.IdempotencyLog
}

func newInMemoryIdempotencyRepo() *inMemoryIdempotencyRepo {
	return &inMemoryIdempotencyRepo{logs: make(map[string]*domain.IdempotencyLog)}
}

func (r *inMemoryIdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[log.Key]; ok {
		return fmt.Errorf("duplicate idempotency key")
	}
	cp := *log
	r.logs[log.Key] = &cp
	return nil
}

func (r *inMemoryIdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.logs[key]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}
