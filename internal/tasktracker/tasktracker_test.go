package tasktracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskCompletesWhenAllSubDocsSucceed(t *testing.T) {
	tr := New()
	tr.CreateTask("t1", 1)
	tr.StartTask("t1", []string{"https://a", "https://b"})

	tr.UpdateSubDocStatus("t1", "https://a", StatusCompleted, "")
	task, ok := tr.Get("t1")
	require.True(t, ok)
	require.Equal(t, StatusRunning, task.Status)

	tr.UpdateSubDocStatus("t1", "https://b", StatusCompleted, "")
	task, _ = tr.Get("t1")
	require.Equal(t, StatusCompleted, task.Status)
}

func TestTaskPartiallyCompletedOnMixedOutcomes(t *testing.T) {
	tr := New()
	tr.CreateTask("t2", 1)
	tr.StartTask("t2", []string{"https://a", "https://b"})
	tr.UpdateSubDocStatus("t2", "https://a", StatusCompleted, "")
	tr.UpdateSubDocStatus("t2", "https://b", StatusFailed, "boom")

	task, _ := tr.Get("t2")
	require.Equal(t, StatusPartiallyCompleted, task.Status)
}

func TestTaskFailedWhenAllSubDocsFail(t *testing.T) {
	tr := New()
	tr.CreateTask("t3", 1)
	tr.StartTask("t3", []string{"https://a"})
	tr.UpdateSubDocStatus("t3", "https://a", StatusFailed, "boom")

	task, _ := tr.Get("t3")
	require.Equal(t, StatusFailed, task.Status)
}

func TestSweepRemovesOldTerminalTasks(t *testing.T) {
	tr := New()
	tr.CreateTask("old", 1)
	tr.FailTask("old", "boom")
	tr.tasks["old"].UpdatedAt = time.Now().Add(-48 * time.Hour)

	tr.CreateTask("fresh", 2)
	tr.FailTask("fresh", "boom")

	removed := tr.Sweep(24 * time.Hour)
	require.Equal(t, 1, removed)

	_, ok := tr.Get("old")
	require.False(t, ok)
	_, ok = tr.Get("fresh")
	require.True(t, ok)
}
