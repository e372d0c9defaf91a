// Package testutil provides shared fixtures for tests that need a migrated
// database or synthetic voters.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/redistrict-impact/internal/model"
	"github.com/Veraticus/redistrict-impact/internal/storage"
)

// TestDB is a migrated in-memory database scoped to one test.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// TestDBOptions configures SetupTestDBWithOptions.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	Voters         []model.Voter
	SkipMigrations bool
}

// SetupTestDB creates a migrated in-memory database seeded with voters.
//
// Example:
//
//	db := testutil.SetupTestDB(t, testutil.NewVoterBuilder().
//		WithKnown(model.Republican, 10, 1, 2).
//		Build())
func SetupTestDB(t *testing.T, voters []model.Voter) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{Voters: voters})
}

// SetupTestDBWithOptions creates an in-memory database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	if len(opts.Voters) > 0 {
		if err := store.SaveVoters(ctx, opts.Voters); err != nil {
			t.Fatalf("failed to seed voters: %v", err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{Storage: store, t: t}
}

// Voters returns every stored voter in id order or fails the test.
func (db *TestDB) Voters() []model.Voter {
	db.t.Helper()
	var out []model.Voter
	err := db.Storage.IterateVoters(context.Background(), 500, func(batch []model.Voter) error {
		out = append(out, batch...)
		return nil
	})
	if err != nil {
		db.t.Fatalf("failed to read voters: %v", err)
	}
	return out
}

// MustVoter returns the stored voter with id or fails the test.
func (db *TestDB) MustVoter(id string) model.Voter {
	db.t.Helper()
	for _, v := range db.Voters() {
		if v.ID == id {
			return v
		}
	}
	db.t.Fatalf("voter %q not found in test database", id)
	return model.Voter{}
}
