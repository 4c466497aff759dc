package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCronRunsJobOnSchedule(t *testing.T) {
	cr := NewCron(nil)
	var runs int32
	_, err := cr.Add("@every 50ms", FuncJob(func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
	}))
	require.NoError(t, err)

	cr.Start()
	defer cr.Stop()
	time.Sleep(180 * time.Millisecond)

	require.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(1))
	require.Len(t, cr.Entries(), 1)
}

func TestCronRejectsInvalidExpression(t *testing.T) {
	cr := NewCron(nil)
	_, err := cr.Add("definitely not cron", FuncJob(func(ctx context.Context) {}))
	require.Error(t, err)
}
