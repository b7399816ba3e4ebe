package worker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"phonorule.dev/machine/logger"
	"phonorule.dev/machine/rules"
	"phonorule.dev/machine/tasks"
	"phonorule.dev/machine/utils"
)

const (
	sender          = "rewrite"
	rewriteWorkType = "rewrite"
)

var ErrUnsupportedWork = errors.New("unsupported work type")

type Message struct {
	WorkType string `json:"work_type"`
	RedisKey string `json:"redis_key"`
	Sender   string `json:"sender"`
	Version  string `json:"version"`
}

type Task struct {
	delivery    *amqp.Delivery
	rewriteTask *tasks.RewriteTask
	message     *Message
	redisKey    string
	requestID   string
	log         *zerolog.Logger
}

// WordFailure is a word the grammar could not segment or rewrite.
type WordFailure struct {
	Word  string `json:"word"`
	Error string `json:"error"`
}

// Result is the document uploaded for a finished task.
type Result struct {
	RequestID   string              `json:"request_id"`
	Grammar     string              `json:"grammar"`
	Engine      rules.Engine        `json:"engine"`
	Derivations []*rules.Derivation `json:"derivations"`
	Failures    []WordFailure       `json:"failures,omitempty"`
}

type rewriteStats struct {
	words     int
	cacheHits int
	failures  []WordFailure
}

func (worker *Worker) processMessage(delivery *amqp.Delivery) {
	defer logger.RecoverAndLog(worker.log, "Panic while processing RMQ message")
	rejectLogger := worker.log.With().Str("message_id", delivery.MessageId).Logger()
	task, err := worker.createTask(delivery)
	if err != nil {
		worker.log.Err(err).
			Str("message_id", delivery.MessageId).
			Str("body", string(delivery.Body)).
			Msg("Failed to create task for delivery")
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		return
	}
	if err = worker.processTask(task); err != nil {
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		return
	}
	if err = worker.rmq.notify(task, *task.message); err != nil {
		task.log.Err(err).Msg("Got error while sending message to notify queue")
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		return
	}
	if err = worker.rmq.acknowledgeDelivery(delivery); err != nil {
		task.log.Err(err).Msg("Failed to acknowledge delivery")
	}
	task.log.Info().Msg("Finished processing RMQ message")
}

func (worker *Worker) createTask(delivery *amqp.Delivery) (*Task, error) {
	var message Message
	if err := json.Unmarshal(delivery.Body, &message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message, got error %w", err)
	}
	if message.WorkType != "" && message.WorkType != rewriteWorkType {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedWork, message.WorkType)
	}
	rewriteTask, err := worker.redis.getRewriteTask(message.RedisKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query rewrite task for message, got error %w", err)
	}
	requestID := uuid.NewString()
	taskLogger := worker.log.With().
		Str("tid", message.RedisKey).
		Str("request_id", requestID).
		Logger()
	return &Task{
		delivery:    delivery,
		rewriteTask: rewriteTask,
		redisKey:    message.RedisKey,
		requestID:   requestID,
		message:     &message,
		log:         &taskLogger,
	}, nil
}

func (worker *Worker) processTask(task *Task) error {
	shouldPerform, err := worker.shouldPerformTask(task)
	if err != nil {
		task.log.Err(err).Msg("Got error while trying to decide whether to run task")
		return err
	}
	if !shouldPerform {
		return nil
	}
	if err = worker.redis.onTaskStarted(task); err != nil {
		task.log.Err(err).Msg("Failed to update task info")
		return fmt.Errorf("failed to update task info: %w", err)
	}
	stats, err := worker.runRewrite(task)
	if err != nil {
		task.log.Err(err).Msg("Got error while rewriting words")
		return worker.redis.onTaskFailedWithError(task, err)
	}
	task.log.Info().
		Int("words", stats.words).
		Int("cache_hits", stats.cacheHits).
		Int("failures", len(stats.failures)).
		Msg("Saved results, marking task as complete")
	if err = worker.redis.onTaskComplete(task, stats); err != nil {
		task.log.Err(err).Msg("Got error while trying to mark task as complete")
		return err
	}
	return nil
}

func (worker *Worker) ruleset(task *Task) (rules.Engine, rewriter, error) {
	engine := worker.defaultEngine
	if task.rewriteTask.Engine != "" {
		var err error
		if engine, err = rules.ParseEngine(task.rewriteTask.Engine); err != nil {
			return "", nil, err
		}
	}
	rs, ok := worker.rulesets[engine]
	if !ok {
		return "", nil, fmt.Errorf("no ruleset for engine %q", engine)
	}
	return engine, rs, nil
}

func (worker *Worker) runRewrite(task *Task) (stats rewriteStats, err error) {
	defer utils.RecoverWithError(&err)
	task.log.Info().Msgf("Processing message from RMQ, attempt # %d", task.rewriteTask.TaskStatuses.Rewrite.Attempts)
	engine, rs, err := worker.ruleset(task)
	if err != nil {
		return stats, err
	}
	data, err := worker.s3.getWordList(task)
	if err != nil {
		task.log.Err(err).Caller().Msg("Could not fetch word list from s3")
		return stats, fmt.Errorf("failed fetch data from s3: %w", err)
	}
	words, err := utils.ScanList(bytes.NewReader(data))
	if err != nil {
		return stats, fmt.Errorf("failed to read word list: %w", err)
	}

	result := Result{RequestID: task.requestID, Grammar: worker.grammarName, Engine: engine}
	for _, word := range words {
		d, cached, err := worker.derive(task, rs, word)
		if err != nil {
			stats.failures = append(stats.failures, WordFailure{Word: word, Error: err.Error()})
			continue
		}
		if cached {
			stats.cacheHits++
		}
		result.Derivations = append(result.Derivations, d)
	}
	stats.words = len(words)
	result.Failures = stats.failures

	b, err := json.Marshal(result)
	if err != nil {
		return stats, err
	}
	task.log.Info().Msg("Finished rewriting, saving results to s3")
	if err = worker.s3.saveResultsFile(task, b); err != nil {
		task.log.Err(err).Msg("Got error while trying to save results")
		return stats, err
	}
	return stats, nil
}

// derive rewrites word, consulting the derivation cache first. Cache errors only cost a
// recomputation.
func (worker *Worker) derive(task *Task, rs rewriter, word string) (*rules.Derivation, bool, error) {
	if !worker.config.UseCache {
		d, err := rs.Rewrite(word)
		return d, false, err
	}
	key := rs.CacheKey(word)
	d, ok, err := worker.redis.getCachedDerivation(key)
	if err != nil {
		task.log.Warn().Err(err).Str("word", word).Msg("Could not read derivation cache")
	}
	if ok {
		return d, true, nil
	}
	if d, err = rs.Rewrite(word); err != nil {
		return nil, false, err
	}
	if err = worker.redis.cacheDerivation(key, d); err != nil {
		task.log.Warn().Err(err).Str("word", word).Msg("Could not cache derivation")
	}
	return d, false, nil
}

func (worker *Worker) shouldPerformTask(task *Task) (bool, error) {
	taskInfo := task.rewriteTask.TaskStatuses.Rewrite
	taskLogger := task.log

	if taskInfo.Status.Complete() {
		taskLogger.Info().Msg("Task is already done. (might indicate issue acking message with RMQ). Notifying anyway.")
		return false, nil
	}
	job, err := worker.redis.getJobTask(task)
	if err != nil {
		taskLogger.Err(err).Msg("Failed to query job task for rewrite task")
		return false, err
	}
	if job.UserCanceled {
		taskLogger.Info().Msg("Job was canceled, no need to perform this task. Notifying anyway.")
		return false, worker.redis.onTaskCancelled(task, "Job was canceled by user")
	}
	if taskInfo.Attempts >= worker.config.TaskMaxRetries {
		taskLogger.Info().Msg("Rewrite task has exceeded retries. Notifying anyway.")
		return false, worker.redis.onTaskExceededRetries(task, worker.config.TaskMaxRetries)
	}
	return true, nil
}
