package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu       sync.Mutex
	settings map[string]Settings
	plans    map[string]decimal.Decimal
	saves    int
	failSave bool
}

func newMemRepo() *memRepo {
	return &memRepo{settings: map[string]Settings{}, plans: map[string]decimal.Decimal{}}
}

func (m *memRepo) LoadSettings(_ context.Context, user string) (Settings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[user]
	return s.Clone(), ok, nil
}

func (m *memRepo) SaveSettings(_ context.Context, user string, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("disk full")
	}
	m.saves++
	m.settings[user] = s.Clone()
	return nil
}

func (m *memRepo) IncomePlan(_ context.Context, user, month string) (decimal.Decimal, bool, error) {
	d, ok := m.plans[user+"/"+month]
	return d, ok, nil
}

func (m *memRepo) SaveIncomePlan(_ context.Context, user, month string, amount decimal.Decimal) error {
	m.plans[user+"/"+month] = amount
	return nil
}

func TestDedupeAndSort(t *testing.T) {
	got := DedupeAndSort([]string{" rent ", "Dining", "", "dining", "Épicerie", "Zoo", "apple"})
	assert.Equal(t, []string{"apple", "Dining", "Épicerie", "rent", "Zoo"}, got)
	assert.Empty(t, DedupeAndSort(nil))
}

func TestLoadReturnsDefaults(t *testing.T) {
	svc := NewService(newMemRepo(), nil)
	s, err := svc.Load(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
	assert.Contains(t, s.Categories, "Groceries")
	assert.Contains(t, s.Accounts, "TD Visa")
}

func TestSaveNormalizes(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	s, err := svc.Save(context.Background(), "ana", Settings{Categories: []string{"b", "A", "a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "b"}, s.Categories)
	assert.Equal(t, []string{"A", "b"}, repo.settings["ana"].Categories)
}

func TestExecuteLocalCommands(t *testing.T) {
	svc := NewService(newMemRepo(), nil)
	ctx := context.Background()

	s, err := svc.Execute(ctx, "ana", AddCategory{Name: " Pets "})
	require.NoError(t, err)
	assert.Contains(t, s.Categories, "Pets")

	_, err = svc.Execute(ctx, "ana", AddCategory{Name: "pets"})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = svc.Execute(ctx, "ana", AddCategory{Name: "  "})
	assert.ErrorIs(t, err, ErrEmptyValue)

	s, err = svc.Execute(ctx, "ana", RemoveCategory{Name: "PETS"})
	require.NoError(t, err)
	assert.NotContains(t, s.Categories, "Pets")

	_, err = svc.Execute(ctx, "ana", RemoveAccount{Name: "Nope"})
	assert.ErrorIs(t, err, ErrMissing)
}

func TestExecuteRollsBackOnRemoteFailure(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	before, err := svc.Save(ctx, "ana", Defaults())
	require.NoError(t, err)

	var seen Settings
	remoteErr := errors.New("backend down")
	cmd := AddAccount{Name: "Amex", Creator: AccountCreatorFunc(func(ctx context.Context, name string) error {
		seen, _, _ = repo.LoadSettings(ctx, "ana")
		assert.Equal(t, "Amex", name)
		return remoteErr
	})}

	got, err := svc.Execute(ctx, "ana", cmd)
	require.ErrorIs(t, err, remoteErr)
	assert.Contains(t, seen.Accounts, "Amex", "change is applied before the remote commit")
	assert.Equal(t, before, got)
	assert.Equal(t, before, repo.settings["ana"])
}

func TestExecuteCommitsRemote(t *testing.T) {
	svc := NewService(newMemRepo(), nil)
	called := false
	s, err := svc.Execute(context.Background(), "ana", AddAccount{Name: "Amex", Creator: AccountCreatorFunc(func(context.Context, string) error {
		called = true
		return nil
	})})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Contains(t, s.Accounts, "Amex")
}

func TestExecuteSaveFailureLeavesState(t *testing.T) {
	repo := newMemRepo()
	repo.failSave = true
	svc := NewService(repo, nil)
	called := false
	_, err := svc.Execute(context.Background(), "ana", AddAccount{Name: "Amex", Creator: AccountCreatorFunc(func(context.Context, string) error {
		called = true
		return nil
	})})
	require.Error(t, err)
	assert.False(t, called, "remote commit must not run when the local save failed")
}

func TestExecuteConcurrentCommandsKeepEveryChange(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Execute(ctx, "ana", AddCategory{Name: fmt.Sprintf("Cat %02d", i)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s, err := svc.Load(ctx, "ana")
	require.NoError(t, err)
	for i := range 20 {
		assert.Contains(t, s.Categories, fmt.Sprintf("Cat %02d", i))
	}
}

func TestRollbackKeepsConcurrentChange(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := svc.Execute(ctx, "ana", AddAccount{Name: "Amex", Creator: AccountCreatorFunc(func(context.Context, string) error {
			close(started)
			<-release
			return errors.New("backend down")
		})})
		done <- err
	}()

	<-started
	added := make(chan error, 1)
	go func() {
		_, err := svc.Execute(ctx, "ana", AddCategory{Name: "Pets"})
		added <- err
	}()
	close(release)

	require.Error(t, <-done)
	require.NoError(t, <-added)
	s, err := svc.Load(ctx, "ana")
	require.NoError(t, err)
	assert.Contains(t, s.Categories, "Pets")
	assert.NotContains(t, s.Accounts, "Amex")
}

func TestReset(t *testing.T) {
	svc := NewService(newMemRepo(), nil)
	ctx := context.Background()
	_, err := svc.Execute(ctx, "ana", AddCategory{Name: "Pets"})
	require.NoError(t, err)

	s, err := svc.Reset(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
}

func TestPlannedIncome(t *testing.T) {
	svc := NewService(newMemRepo(), nil)
	ctx := context.Background()

	got, err := svc.PlannedIncome(ctx, "ana", "2025-12")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	require.NoError(t, svc.SetPlannedIncome(ctx, "ana", "2025-12", decimal.NewFromInt(4000)))
	got, err = svc.PlannedIncome(ctx, "ana", "2025-12")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(4000)))

	assert.ErrorIs(t, svc.SetPlannedIncome(ctx, "ana", "2025-13", decimal.NewFromInt(1)), ErrInvalidMonth)
	assert.ErrorIs(t, svc.SetPlannedIncome(ctx, "ana", "2025-12", decimal.NewFromInt(-1)), ErrNegative)
	_, err = svc.PlannedIncome(ctx, "ana", "Dec")
	assert.ErrorIs(t, err, ErrInvalidMonth)
}
