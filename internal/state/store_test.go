package state

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"budgetapp/internal/api"
	"budgetapp/internal/cache"
	"budgetapp/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	accountCalls atomic.Int32
	txCalls      atomic.Int32
	err          error
	cancel       context.CancelFunc
	during       func() // runs while a load is in flight
}

func (f *fakeSource) LoadAccountsWithBuckets(ctx context.Context, s api.Session, limit int) ([]core.Account, map[string][]core.Bucket, error) {
	f.accountCalls.Add(1)
	if f.err != nil {
		return nil, nil, f.err
	}
	if f.cancel != nil {
		f.cancel()
	}
	if f.during != nil {
		f.during()
	}
	return []core.Account{{ID: "a", Name: "A", Kind: core.Debit, Balance: decimal.NewFromInt(1000)}},
		map[string][]core.Bucket{"a": {{ID: "1", Name: "Emergency", Balance: decimal.NewFromInt(300)}}},
		nil
}

func (f *fakeSource) ListTransactions(ctx context.Context, s api.Session) ([]core.Transaction, error) {
	f.txCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if f.during != nil {
		f.during()
	}
	return []core.Transaction{{ID: "t1", Date: "2025-12-05", Amount: decimal.NewFromInt(-10)}}, nil
}

func sess(v string) api.Session {
	return api.Session{Cookies: []*http.Cookie{{Name: "JSESSIONID", Value: v}}}
}

func newStore(src Source) *Store {
	return New(src, Config{Size: 10, TTL: time.Minute, Concurrency: 2}, cache.NewManager(nil), nil)
}

func TestStoreCachesPerSession(t *testing.T) {
	src := &fakeSource{}
	s := newStore(src)
	ctx := context.Background()

	_, err := s.Snapshot(ctx, sess("one"))
	require.NoError(t, err)
	_, err = s.Snapshot(ctx, sess("one"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, src.accountCalls.Load())
	assert.EqualValues(t, 1, src.txCalls.Load())

	_, err = s.Snapshot(ctx, sess("two"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.accountCalls.Load())
}

func TestInvalidateScopes(t *testing.T) {
	src := &fakeSource{}
	s := newStore(src)
	ctx := context.Background()
	_, err := s.Snapshot(ctx, sess("one"))
	require.NoError(t, err)

	s.Invalidate(sess("one"), ScopeTransactions)
	_, err = s.Snapshot(ctx, sess("one"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, src.accountCalls.Load())
	assert.EqualValues(t, 2, src.txCalls.Load())

	s.Invalidate(sess("one"), ScopeAll)
	_, err = s.Snapshot(ctx, sess("one"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.accountCalls.Load())
	assert.EqualValues(t, 3, src.txCalls.Load())
}

func TestReadsAreCopies(t *testing.T) {
	s := newStore(&fakeSource{})
	ctx := context.Background()

	accounts, buckets, err := s.Accounts(ctx, sess("one"))
	require.NoError(t, err)
	accounts[0].Name = "mutated"
	buckets["a"][0].Name = "mutated"
	buckets["x"] = nil

	again, bucketsAgain, err := s.Accounts(ctx, sess("one"))
	require.NoError(t, err)
	assert.Equal(t, "A", again[0].Name)
	assert.Equal(t, "Emergency", bucketsAgain["a"][0].Name)
	assert.NotContains(t, bucketsAgain, "x")

	txs, err := s.Transactions(ctx, sess("one"))
	require.NoError(t, err)
	txs[0].ID = "mutated"
	txs2, err := s.Transactions(ctx, sess("one"))
	require.NoError(t, err)
	assert.Equal(t, "t1", txs2[0].ID)
}

func TestCancelledRequestDoesNotPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{cancel: cancel}
	s := newStore(src)

	_, _, err := s.Accounts(ctx, sess("one"))
	require.NoError(t, err)

	src.cancel = nil
	_, _, err = s.Accounts(context.Background(), sess("one"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.accountCalls.Load())
}

func TestInvalidateDuringLoadIsNotOverwritten(t *testing.T) {
	src := &fakeSource{}
	s := newStore(src)
	ctx := context.Background()
	src.during = func() { s.Invalidate(sess("one"), ScopeAll) }

	_, _, err := s.Accounts(ctx, sess("one"))
	require.NoError(t, err)
	_, err = s.Transactions(ctx, sess("one"))
	require.NoError(t, err)

	src.during = nil
	_, err = s.Snapshot(ctx, sess("one"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.accountCalls.Load(), "load raced by an invalidation must not be cached")
	assert.EqualValues(t, 2, src.txCalls.Load())

	_, err = s.Snapshot(ctx, sess("one"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.accountCalls.Load())
	assert.EqualValues(t, 2, src.txCalls.Load())
}

func TestInvalidateOtherScopeDuringLoadStillPublishes(t *testing.T) {
	src := &fakeSource{}
	s := newStore(src)
	ctx := context.Background()
	src.during = func() { s.Invalidate(sess("one"), ScopeTransactions) }

	_, _, err := s.Accounts(ctx, sess("one"))
	require.NoError(t, err)

	src.during = nil
	_, _, err = s.Accounts(ctx, sess("one"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, src.accountCalls.Load())
}

func TestErrorsAreNotCached(t *testing.T) {
	src := &fakeSource{err: api.ErrUnauthorized}
	s := newStore(src)

	_, err := s.Snapshot(context.Background(), sess("one"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrUnauthorized))

	src.err = nil
	_, err = s.Snapshot(context.Background(), sess("one"))
	require.NoError(t, err)
}

func TestScopeString(t *testing.T) {
	assert.Equal(t, "accounts", ScopeAccounts.String())
	assert.Equal(t, "all", ScopeAll.String())
}
