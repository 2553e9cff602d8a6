package operations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockName(t *testing.T) {
	a := LockName("/srv/site/backups")
	assert.Equal(t, a, LockName("/srv/site/backups/"))
	assert.NotEqual(t, a, LockName("/srv/other/backups"))
	assert.Regexp(t, `^sitebackup-[0-9a-f]{16}$`, a)
}

func TestAcquireRunLock_SecondRunIsRejected(t *testing.T) {
	root := t.TempDir()

	held, err := AcquireRunLock(root, time.Second, nil)
	require.NoError(t, err)

	_, err = AcquireRunLock(root, 150*time.Millisecond, nil)
	require.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, ExitLocked, ExitCode(err))

	held.Release()

	again, err := AcquireRunLock(root, time.Second, nil)
	require.NoError(t, err)
	again.Release()
}

func TestAcquireRunLock_OtherDirectoryIsIndependent(t *testing.T) {
	held, err := AcquireRunLock(t.TempDir(), time.Second, nil)
	require.NoError(t, err)
	defer held.Release()

	other, err := AcquireRunLock(t.TempDir(), time.Second, nil)
	require.NoError(t, err)
	other.Release()
}

func TestAcquireRunLock_Cancelled(t *testing.T) {
	root := t.TempDir()
	held, err := AcquireRunLock(root, time.Second, nil)
	require.NoError(t, err)
	defer held.Release()

	cancel := make(chan struct{})
	close(cancel)
	_, err = AcquireRunLock(root, 5*time.Second, cancel)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ExitInterrupted, ExitCode(err))
}
