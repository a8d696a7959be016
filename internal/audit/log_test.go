package audit

import (
	"context"
	"testing"
	"time"

	"github.com/SlpAus/flag-training-backend/internal/flag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogObserver_WritesOutcome(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	obs := NewLogObserver(zap.New(core))

	err := obs.FlagChecked(context.Background(), flag.Outcome{
		UserID:    7,
		ModuleID:  3,
		Valid:     true,
		CheckedAt: time.Now(),
	})
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(7), fields["user_id"])
	assert.Equal(t, int64(3), fields["module_id"])
	assert.Equal(t, true, fields["valid"])
}

func TestLogObserver_NilLogger(t *testing.T) {
	assert.NoError(t, NewLogObserver(nil).FlagChecked(context.Background(), flag.Outcome{}))
}
