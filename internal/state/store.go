// Package state is the per-session application state container.
//
// Handlers read accounts, buckets and transactions through the Store and
// never fetch them from the backend directly. Writes elsewhere invalidate
// a scope; the next read refetches it.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"budgetapp/internal/api"
	"budgetapp/internal/cache"
	"budgetapp/internal/core"
	"budgetapp/internal/log"

	"golang.org/x/sync/errgroup"
)

// Scope names what a mutation made stale.
type Scope int

const (
	ScopeAccounts Scope = 1 << iota
	ScopeTransactions

	ScopeAll = ScopeAccounts | ScopeTransactions
)

func (s Scope) String() string {
	switch s {
	case ScopeAccounts:
		return "accounts"
	case ScopeTransactions:
		return "transactions"
	case ScopeAll:
		return "all"
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// Source is the backend the store loads from.
type Source interface {
	LoadAccountsWithBuckets(ctx context.Context, s api.Session, limit int) ([]core.Account, map[string][]core.Bucket, error)
	ListTransactions(ctx context.Context, s api.Session) ([]core.Transaction, error)
}

// Snapshot is everything a page needs about the user's money.
type Snapshot struct {
	Accounts     []core.Account
	Buckets      map[string][]core.Bucket
	Transactions []core.Transaction
	FetchedAt    time.Time
}

type accountsEntry struct {
	accounts  []core.Account
	buckets   map[string][]core.Bucket
	fetchedAt time.Time
}

type transactionsEntry struct {
	txs       []core.Transaction
	fetchedAt time.Time
}

// Config sizes the store.
type Config struct {
	Size        int
	TTL         time.Duration
	Concurrency int
}

// Store caches backend collections per session.
type Store struct {
	src          Source
	accounts     *cache.LRUCache[accountsEntry]
	transactions *cache.LRUCache[transactionsEntry]
	concurrency  int
	logger       *log.Logger
	now          func() time.Time

	// mu orders publishes against Invalidate. A load that started before
	// an invalidation of its key and scope is not published.
	mu      sync.Mutex
	epoch   uint64
	loading int
	stamps  map[stampKey]uint64
}

type stampKey struct {
	session string
	scope   Scope
}

// New creates a store and registers its caches with manager for cleanup.
func New(src Source, cfg Config, manager *cache.Manager, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Discard()
	}
	s := &Store{
		src:          src,
		accounts:     cache.NewLRUCache[accountsEntry](cfg.Size, cfg.TTL),
		transactions: cache.NewLRUCache[transactionsEntry](cfg.Size, cfg.TTL),
		concurrency:  cfg.Concurrency,
		logger:       logger.WithComponent(log.ComponentState),
		now:          time.Now,
		stamps:       make(map[stampKey]uint64),
	}
	if manager != nil {
		manager.Register(s.accounts)
		manager.Register(s.transactions)
	}
	return s
}

// Accounts returns the accounts and their buckets, from cache when fresh.
func (s *Store) Accounts(ctx context.Context, sess api.Session) ([]core.Account, map[string][]core.Bucket, error) {
	key := sess.Key()
	if e, ok := s.accounts.Get(key); ok {
		return cloneAccounts(e.accounts), cloneBuckets(e.buckets), nil
	}

	start := s.beginLoad()
	accounts, buckets, err := s.src.LoadAccountsWithBuckets(ctx, sess, s.concurrency)
	// A request that was cancelled mid-load must not publish what it got.
	s.endLoad(key, ScopeAccounts, start, err == nil && ctx.Err() == nil, func() {
		s.accounts.Set(key, accountsEntry{accounts: accounts, buckets: buckets, fetchedAt: s.now()})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load accounts: %w", err)
	}
	return cloneAccounts(accounts), cloneBuckets(buckets), nil
}

// Transactions returns the user's transactions, from cache when fresh.
func (s *Store) Transactions(ctx context.Context, sess api.Session) ([]core.Transaction, error) {
	key := sess.Key()
	if e, ok := s.transactions.Get(key); ok {
		return cloneTransactions(e.txs), nil
	}

	start := s.beginLoad()
	txs, err := s.src.ListTransactions(ctx, sess)
	s.endLoad(key, ScopeTransactions, start, err == nil && ctx.Err() == nil, func() {
		s.transactions.Set(key, transactionsEntry{txs: txs, fetchedAt: s.now()})
	})
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	return cloneTransactions(txs), nil
}

// Snapshot loads both collections concurrently.
func (s *Store) Snapshot(ctx context.Context, sess api.Session) (Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Accounts, snap.Buckets, err = s.Accounts(gctx, sess)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Transactions, err = s.Transactions(gctx, sess)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	snap.FetchedAt = s.now()
	return snap, nil
}

// Invalidate drops the given scopes for one session. Loads already in
// flight for those scopes will not repopulate the cache.
func (s *Store) Invalidate(sess api.Session, scope Scope) {
	key := sess.Key()
	s.mu.Lock()
	s.epoch++
	for _, one := range []Scope{ScopeAccounts, ScopeTransactions} {
		if scope&one == 0 {
			continue
		}
		if s.loading > 0 {
			s.stamps[stampKey{key, one}] = s.epoch
		}
		switch one {
		case ScopeAccounts:
			s.accounts.Delete(key)
		case ScopeTransactions:
			s.transactions.Delete(key)
		}
	}
	s.mu.Unlock()
	s.logger.Debug("State invalidated", "scope", scope.String())
}

func (s *Store) beginLoad() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading++
	return s.epoch
}

// endLoad runs publish when ok and no invalidation of key and scope
// happened since start. Stamps are only needed while loads are running.
func (s *Store) endLoad(key string, scope Scope, start uint64, ok bool, publish func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading--
	if ok && s.stamps[stampKey{key, scope}] <= start {
		publish()
	}
	if s.loading == 0 {
		clear(s.stamps)
	}
}

// Forget drops everything cached for a session, e.g. on logout.
func (s *Store) Forget(sess api.Session) {
	s.Invalidate(sess, ScopeAll)
}

func cloneAccounts(in []core.Account) []core.Account {
	if in == nil {
		return nil
	}
	return append([]core.Account(nil), in...)
}

func cloneTransactions(in []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(in))
	copy(out, in)
	return out
}

func cloneBuckets(in map[string][]core.Bucket) map[string][]core.Bucket {
	out := make(map[string][]core.Bucket, len(in))
	for k, v := range in {
		out[k] = append([]core.Bucket(nil), v...)
	}
	return out
}
