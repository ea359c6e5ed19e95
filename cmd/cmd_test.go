package cmd

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"chathive/internal/config"
)

func TestOpenStore_Drivers(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		req := require.New(t)
		st, err := openStore(ctx, config.Config{StoreDriver: "sqlite", StoreDSN: filepath.Join(t.TempDir(), "c.db")}, log)
		req.NoError(err)
		req.NoError(st.Migrate(ctx))
		req.NoError(st.Close())
	})

	t.Run("badger", func(t *testing.T) {
		req := require.New(t)
		st, err := openStore(ctx, config.Config{StoreDriver: "badger", StoreDSN: t.TempDir()}, log)
		req.NoError(err)
		req.NoError(st.Migrate(ctx))
		req.NoError(st.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := openStore(ctx, config.Config{StoreDriver: "postgres", StoreDSN: "x"}, log)
		require.Error(t, err)
	})
}

func TestMigrateCommand_Creates_Schema(t *testing.T) {
	req := require.New(t)
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("STORE_DSN", filepath.Join(t.TempDir(), "migrate.db"))
	t.Setenv("LOG_LEVEL", "error")

	root := NewRootCommand()
	root.SetArgs([]string{"migrate"})
	root.SetOut(io.Discard)

	req.NoError(root.ExecuteContext(context.Background()))
}

func TestRootCommand_Fails_Without_DSN(t *testing.T) {
	t.Setenv("STORE_DSN", "")

	root := NewRootCommand()
	root.SetArgs([]string{"migrate"})

	require.Error(t, root.ExecuteContext(context.Background()))
}
