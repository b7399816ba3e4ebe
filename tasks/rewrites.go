package tasks

import (
	"phonorule.dev/machine/redis"
)

const RewritesDB redis.DB = 2

type TaskStatus string

const (
	TaskStatusProcessing       TaskStatus = "processing"
	TaskStatusSubmitted        TaskStatus = "submitted"
	TaskStatusStarted          TaskStatus = "started"
	TaskStatusFailed           TaskStatus = "failed"
	TaskStatusCompletedSuccess TaskStatus = "completed - success"
	TaskStatusCompletedFailure TaskStatus = "completed - failure"
	TaskStatusCanceled         TaskStatus = "canceled"
)

func (s TaskStatus) Complete() bool {
	return s == TaskStatusCompletedSuccess || s == TaskStatusCompletedFailure || s == TaskStatusCanceled
}

func (s TaskStatus) Submitted() bool {
	return s == TaskStatusSubmitted || s == TaskStatusStarted || s == TaskStatusProcessing
}

// RewriteTask asks for every word in InputFileKey to be run through the grammar.
type RewriteTask struct {
	JobID        string              `json:"job_id"`
	InputFileKey string              `json:"input_file_key"`
	Engine       string              `json:"engine,omitempty"`
	TaskStatuses RewriteTaskStatuses `json:"task_statuses"`
}

type RewriteTaskStatuses struct {
	Rewrite RewriteTaskInfo `json:"rewrite"`
}

type RewriteTaskInfo struct {
	RequestID      string     `json:"request_id"`
	ResultsFileKey string     `json:"results_file_key"`
	StartedAt      *string    `json:"started_at"`
	CompletedAt    *string    `json:"completed_at"`
	Attempts       int        `json:"attempts"`
	Status         TaskStatus `json:"status"`
	Words          int        `json:"words"`
	CacheHits      int        `json:"cache_hits"`
	ErrorMessages  []string   `json:"error_messages"`
}

type RewriteTasks struct {
	client redis.Client
}

func (tasks RewriteTasks) Get(redisKey string) (*RewriteTask, error) {
	var task RewriteTask
	if err := tasks.client.GetDocument(redisKey, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Update applies updateFunc to the stored task under the task lock.
func (tasks RewriteTasks) Update(redisKey string, updateFunc func(task *RewriteTask)) error {
	var task RewriteTask
	return tasks.client.UpdateDocument(redisKey, &task, func() {
		updateFunc(&task)
	})
}
