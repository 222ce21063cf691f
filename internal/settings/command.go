package settings

import (
	"context"
	"strings"
)

// Command is one optimistic settings change. Apply computes the new state
// locally; Commit makes it real remotely, if it has a remote side at all.
type Command interface {
	Apply(Settings) (Settings, error)
	Commit(ctx context.Context) error
}

// AddCategory adds a category chip.
type AddCategory struct{ Name string }

func (c AddCategory) Apply(s Settings) (Settings, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return s, ErrEmptyValue
	}
	if contains(s.Categories, name) {
		return s, ErrDuplicate
	}
	next := s.Clone()
	next.Categories = DedupeAndSort(append(next.Categories, name))
	return next, nil
}

func (AddCategory) Commit(context.Context) error { return nil }

// RemoveCategory removes a category chip.
type RemoveCategory struct{ Name string }

func (c RemoveCategory) Apply(s Settings) (Settings, error) {
	if !contains(s.Categories, c.Name) {
		return s, ErrMissing
	}
	next := s.Clone()
	next.Categories = without(next.Categories, c.Name)
	return next, nil
}

func (RemoveCategory) Commit(context.Context) error { return nil }

// AccountCreator creates the backend account behind a new account chip.
type AccountCreator interface {
	CreateAccount(ctx context.Context, name string) error
}

// AccountCreatorFunc adapts a function to AccountCreator.
type AccountCreatorFunc func(ctx context.Context, name string) error

func (f AccountCreatorFunc) CreateAccount(ctx context.Context, name string) error {
	return f(ctx, name)
}

// AddAccount adds an account chip and creates the account remotely.
type AddAccount struct {
	Name    string
	Creator AccountCreator
}

func (c AddAccount) Apply(s Settings) (Settings, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return s, ErrEmptyValue
	}
	if contains(s.Accounts, name) {
		return s, ErrDuplicate
	}
	next := s.Clone()
	next.Accounts = DedupeAndSort(append(next.Accounts, name))
	return next, nil
}

func (c AddAccount) Commit(ctx context.Context) error {
	if c.Creator == nil {
		return nil
	}
	return c.Creator.CreateAccount(ctx, strings.TrimSpace(c.Name))
}

// RemoveAccount removes an account chip. The backend account is kept.
type RemoveAccount struct{ Name string }

func (c RemoveAccount) Apply(s Settings) (Settings, error) {
	if !contains(s.Accounts, c.Name) {
		return s, ErrMissing
	}
	next := s.Clone()
	next.Accounts = without(next.Accounts, c.Name)
	return next, nil
}

func (RemoveAccount) Commit(context.Context) error { return nil }
