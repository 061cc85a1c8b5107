package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/murmur/internal/store"
	"github.com/roach88/murmur/internal/testutil"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "murmur", cmd.Use)
	assert.Contains(t, cmd.Long, "relay")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "sweep"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	for _, name := range []string{"port", "engine", "db"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(name), "flag %s should exist", name)
	}
}

func TestSweepCommand_DeletesExpired(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	st, err := store.Open(store.Config{Engine: store.EngineSQLite, DSN: dsn})
	require.NoError(t, err)
	signer := testutil.NewSigner(t)
	ev := signer.Event(t, 1, 100, "long gone", []string{"expiration", "200"})
	_, err = st.SubmitEvent(ctx, ev)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"sweep", "--db", dsn})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "deleted 1 expired events")

	// The store is intact minus the expired row.
	st, err = store.Open(store.Config{Engine: store.EngineSQLite, DSN: dsn})
	require.NoError(t, err)
	defer st.Close()
	stored, err := st.HasEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, stored)
}

func TestSweepCommand_UnknownEngineFails(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"sweep", "--engine", "mysql", "--db", "x"})

	assert.Error(t, cmd.Execute())
}
