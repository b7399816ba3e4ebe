package worker

import (
	"fmt"

	"phonorule.dev/machine/rules"
	"phonorule.dev/machine/tasks"
)

type redisTransactions interface {
	getRewriteTask(redisKey string) (*tasks.RewriteTask, error)
	getJobTask(task *Task) (*tasks.JobTask, error)
	getCachedDerivation(key uint64) (*rules.Derivation, bool, error)
	cacheDerivation(key uint64, d *rules.Derivation) error
	onTaskStarted(task *Task) error
	onTaskCancelled(task *Task, errorMessages ...string) error
	onTaskExceededRetries(task *Task, maxRetries int) error
	onTaskFailedWithError(task *Task, err error) error
	onTaskComplete(task *Task, stats rewriteStats) error
	close()
}

type redisClientWrapper struct {
	tasksClient *tasks.Client
}

func (wrapper *redisClientWrapper) close() {
	wrapper.tasksClient.Close()
}

func (wrapper *redisClientWrapper) onTaskStarted(task *Task) error {
	return wrapper.tasksClient.Rewrites.Update(task.redisKey, func(rewriteTask *tasks.RewriteTask) {
		info := &rewriteTask.TaskStatuses.Rewrite
		info.Status = tasks.TaskStatusStarted
		info.RequestID = task.requestID
		info.Attempts += 1
		info.StartedAt = getFormattedNow()
		info.CompletedAt = nil
	})
}

func (wrapper *redisClientWrapper) onTaskCancelled(task *Task, errorMessages ...string) error {
	return wrapper.tasksClient.Rewrites.Update(task.redisKey, func(rewriteTask *tasks.RewriteTask) {
		info := &rewriteTask.TaskStatuses.Rewrite
		info.Status = tasks.TaskStatusCanceled
		info.StartedAt = getFormattedNow()
		info.CompletedAt = getFormattedNow()
		info.Attempts += 1
		info.ErrorMessages = append(info.ErrorMessages, errorMessages...)
	})
}

func (wrapper *redisClientWrapper) onTaskExceededRetries(task *Task, maxRetries int) error {
	return wrapper.tasksClient.Rewrites.Update(task.redisKey, func(rewriteTask *tasks.RewriteTask) {
		info := &rewriteTask.TaskStatuses.Rewrite
		info.Status = tasks.TaskStatusCompletedFailure
		info.StartedAt = getFormattedNow()
		info.CompletedAt = getFormattedNow()
		info.Attempts += 1
		info.ErrorMessages = append(
			info.ErrorMessages,
			fmt.Sprintf("Task has exceeded retries. (Attempts: %d, max retries: %d )", info.Attempts, maxRetries),
		)
	})
}

func (wrapper *redisClientWrapper) onTaskFailedWithError(task *Task, err error) error {
	return wrapper.tasksClient.Rewrites.Update(task.redisKey, func(rewriteTask *tasks.RewriteTask) {
		info := &rewriteTask.TaskStatuses.Rewrite
		info.Status = tasks.TaskStatusFailed
		info.CompletedAt = getFormattedNow()
		info.ErrorMessages = append(info.ErrorMessages, err.Error())
	})
}

func (wrapper *redisClientWrapper) onTaskComplete(task *Task, stats rewriteStats) error {
	return wrapper.tasksClient.Rewrites.Update(task.redisKey, func(rewriteTask *tasks.RewriteTask) {
		info := &rewriteTask.TaskStatuses.Rewrite
		if !info.Status.Complete() {
			info.Status = tasks.TaskStatusCompletedSuccess
		}
		info.CompletedAt = getFormattedNow()
		info.ResultsFileKey = getResultsFileKey(task)
		info.Words = stats.words
		info.CacheHits = stats.cacheHits
		for _, f := range stats.failures {
			info.ErrorMessages = append(info.ErrorMessages, fmt.Sprintf("%s: %s", f.Word, f.Error))
		}
	})
}

func (wrapper *redisClientWrapper) getRewriteTask(redisKey string) (*tasks.RewriteTask, error) {
	return wrapper.tasksClient.Rewrites.Get(redisKey)
}

func (wrapper *redisClientWrapper) getJobTask(task *Task) (*tasks.JobTask, error) {
	return wrapper.tasksClient.Jobs.GetCached(task.rewriteTask.JobID)
}

func (wrapper *redisClientWrapper) getCachedDerivation(key uint64) (*rules.Derivation, bool, error) {
	return wrapper.tasksClient.Derivations.Get(key)
}

func (wrapper *redisClientWrapper) cacheDerivation(key uint64, d *rules.Derivation) error {
	return wrapper.tasksClient.Derivations.Set(key, d)
}
