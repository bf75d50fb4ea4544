package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/store/postgres"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/store/storetest"
)

// TestStore runs against the database in POSTGRES_TEST_DSN. Its tables are truncated.
func TestStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	s := postgres.NewStore(postgres.Config{DB: db})
	require.NoError(t, s.Migrate(ctx))

	storetest.Run(t, func(t *testing.T) storetest.Store {
		_, err := db.Exec(ctx, `TRUNCATE attempt_answers, attempts, questions, quizzes;`)
		require.NoError(t, err)
		return s
	})
}
