package tasks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaskStatus(t *testing.T) {
	tests := []struct {
		status    TaskStatus
		complete  bool
		submitted bool
	}{
		{TaskStatusSubmitted, false, true},
		{TaskStatusStarted, false, true},
		{TaskStatusProcessing, false, true},
		{TaskStatusFailed, false, false},
		{TaskStatusCompletedSuccess, true, false},
		{TaskStatusCompletedFailure, true, false},
		{TaskStatusCanceled, true, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			require.Equal(t, tt.complete, tt.status.Complete())
			require.Equal(t, tt.submitted, tt.status.Submitted())
		})
	}
}

func TestRewriteTaskDecoding(t *testing.T) {
	raw := `{
		"job_id": "job-1",
		"input_file_key": "words/batch-1.txt",
		"engine": "fst",
		"task_statuses": {"rewrite": {"status": "submitted", "attempts": 1, "started_at": null}},
		"document_info": {"ignored": true}
	}`
	var task RewriteTask
	require.NoError(t, json.Unmarshal([]byte(raw), &task))
	require.Equal(t, "job-1", task.JobID)
	require.Equal(t, "words/batch-1.txt", task.InputFileKey)
	require.Equal(t, "fst", task.Engine)
	require.Equal(t, TaskStatusSubmitted, task.TaskStatuses.Rewrite.Status)
	require.Equal(t, 1, task.TaskStatuses.Rewrite.Attempts)
	require.Nil(t, task.TaskStatuses.Rewrite.StartedAt)
}

func TestKeys(t *testing.T) {
	require.Equal(t, "job-1-cached-properties", cachedPropertiesKey("job-1"))
	require.Equal(t, "derivation:00000000000000ff", derivationKey(255))
}
