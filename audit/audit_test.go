package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileLogger(t *testing.T) (*FileLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit", "audit.log")
	logger, err := NewFileLogger(&Config{
		Enabled:   true,
		Namespace: "test",
		Type:      FileAuditType,
		Options:   map[string]interface{}{"file_path": path},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })
	return logger, path
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(nil)
	require.NoError(t, err)
	assert.IsType(t, &NoOpLogger{}, logger)

	logger, err = NewLogger(&Config{Enabled: false, Type: FileAuditType})
	require.NoError(t, err)
	assert.IsType(t, &NoOpLogger{}, logger)

	logger, err = NewLogger(&Config{Enabled: true})
	require.NoError(t, err)
	assert.IsType(t, &NoOpLogger{}, logger)

	_, err = NewLogger(&Config{Enabled: true, Type: FileAuditType})
	assert.Error(t, err, "file_path is required")

	_, err = NewLogger(&Config{Enabled: true, Type: "database"})
	assert.Error(t, err)
}

func TestFileLoggerWritesJSONLines(t *testing.T) {
	logger, path := newTestFileLogger(t)

	require.NoError(t, logger.Log(Event{
		Action:    ActionCellEncrypt,
		Command:   "rd_themis.cset",
		Key:       "user:1",
		RequestID: "r-1",
		Success:   true,
		InputSize: 12,
	}))
	require.NoError(t, logger.Log(Event{
		Action:  ActionCellDecrypt,
		Command: "rd_themis.cget",
		Key:     "user:1",
		Success: false,
		Error:   "secure seal decryption failed",
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"action":"cell_encrypt"`)
	assert.Contains(t, lines[0], `"namespace":"test"`)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileLoggerQuery(t *testing.T) {
	logger, _ := newTestFileLogger(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i, action := range []string{ActionCellEncrypt, ActionCellDecrypt, ActionMessageEncrypt, ActionCellDecrypt} {
		require.NoError(t, logger.Log(Event{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Action:    action,
			Key:       "k",
			Success:   i != 3,
		}))
	}

	result, err := logger.Query(QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, result.TotalCount)
	require.Len(t, result.Events, 4)
	assert.True(t, result.Events[0].Timestamp.After(result.Events[3].Timestamp), "newest first")

	result, err = logger.Query(QueryOptions{Action: ActionCellDecrypt})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Filtered)

	failed := false
	result, err = logger.Query(QueryOptions{Success: &failed})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, ActionCellDecrypt, result.Events[0].Action)

	result, err = logger.Query(QueryOptions{Limit: 3, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, result.Events, 2)
	assert.False(t, result.HasMore)

	result, err = logger.Query(QueryOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, result.Events, 1)
	assert.True(t, result.HasMore)

	since := base.Add(90 * time.Second)
	result, err = logger.Query(QueryOptions{Since: &since})
	require.NoError(t, err)
	assert.Len(t, result.Events, 2)
}

func TestFileLoggerReopensAfterClose(t *testing.T) {
	logger, _ := newTestFileLogger(t)

	require.NoError(t, logger.Log(Event{Action: ActionMessageDecrypt, Success: true}))
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Log(Event{Action: ActionMessageDecrypt, Success: true}))

	result, err := logger.Query(QueryOptions{Action: ActionMessageDecrypt})
	require.NoError(t, err)
	assert.Len(t, result.Events, 2)
	for _, event := range result.Events {
		assert.NotEmpty(t, event.ID)
	}
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	assert.NoError(t, logger.Log(Event{Action: ActionCellEncrypt}))
	result, err := logger.Query(QueryOptions{})
	assert.NoError(t, err)
	assert.Empty(t, result.Events)
	assert.NoError(t, logger.Close())
}
