package worker

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"phonorule.dev/machine/rules"
	"phonorule.dev/machine/tasks"
)

type failingMethod struct {
	fail bool
}

type withValue struct {
	fail          bool
	returnedValue interface{}
}

type redisMock struct {
	config redisMockConfig
	calls  redisMockCalls
	cache  map[uint64]*rules.Derivation
	stats  rewriteStats
}

type redisMockConfig struct {
	getRewriteTask        withValue
	getJobTask            withValue
	getCachedDerivation   failingMethod
	cacheDerivation       failingMethod
	onTaskCancelled       failingMethod
	onTaskStarted         failingMethod
	onTaskExceededRetries failingMethod
	onTaskFailedWithError failingMethod
	onTaskComplete        failingMethod
}

type redisMockCalls struct {
	getRewriteTask        bool
	getJobTask            bool
	onTaskCancelled       bool
	onTaskStarted         bool
	onTaskExceededRetries bool
	onTaskFailedWithError bool
	onTaskComplete        bool
}

type rmqMock struct {
	config rmqMockConfig
	calls  rmqMockCalls
}

type rmqMockConfig struct {
	notify              failingMethod
	acknowledgeDelivery failingMethod
}

type rmqMockCalls struct {
	notify              bool
	acknowledgeDelivery bool
	rejectDelivery      bool
}

type s3Mock struct {
	config s3MockConfig
	calls  s3MockCalls
	saved  []byte
}

type s3MockConfig struct {
	getWordList     withValue
	saveResultsFile failingMethod
}

type s3MockCalls struct {
	getWordList     bool
	saveResultsFile bool
}

func (mock *s3Mock) close() {}

func (mock *rmqMock) close() {}

func (mock *redisMock) close() {}

func (mock *redisMock) getRewriteTask(redisKey string) (*tasks.RewriteTask, error) {
	mock.calls.getRewriteTask = true
	if mock.config.getRewriteTask.fail {
		return nil, errors.New("failed to get rewrite task")
	}
	if task, ok := mock.config.getRewriteTask.returnedValue.(tasks.RewriteTask); ok {
		return &task, nil
	}
	return &tasks.RewriteTask{JobID: "job"}, nil
}

func (mock *redisMock) getJobTask(task *Task) (*tasks.JobTask, error) {
	mock.calls.getJobTask = true
	if mock.config.getJobTask.fail {
		return nil, errors.New("failed to get job task")
	}
	if job, ok := mock.config.getJobTask.returnedValue.(tasks.JobTask); ok {
		return &job, nil
	}
	return &tasks.JobTask{}, nil
}

func (mock *redisMock) getCachedDerivation(key uint64) (*rules.Derivation, bool, error) {
	if mock.config.getCachedDerivation.fail {
		return nil, false, errors.New("failed to read cache")
	}
	d, ok := mock.cache[key]
	return d, ok, nil
}

func (mock *redisMock) cacheDerivation(key uint64, d *rules.Derivation) error {
	if mock.config.cacheDerivation.fail {
		return errors.New("failed to write cache")
	}
	if mock.cache == nil {
		mock.cache = make(map[uint64]*rules.Derivation)
	}
	mock.cache[key] = d
	return nil
}

func (mock *redisMock) onTaskStarted(task *Task) error {
	mock.calls.onTaskStarted = true
	if mock.config.onTaskStarted.fail {
		return errors.New("failed to update rewrite task on start")
	}
	return nil
}

func (mock *redisMock) onTaskCancelled(task *Task, errorMessages ...string) error {
	mock.calls.onTaskCancelled = true
	if mock.config.onTaskCancelled.fail {
		return errors.New("failed to update rewrite task on cancel")
	}
	return nil
}

func (mock *redisMock) onTaskExceededRetries(task *Task, maxRetries int) error {
	mock.calls.onTaskExceededRetries = true
	if mock.config.onTaskExceededRetries.fail {
		return errors.New("failed to update rewrite task on exceeded retries")
	}
	return nil
}

func (mock *redisMock) onTaskFailedWithError(task *Task, err error) error {
	mock.calls.onTaskFailedWithError = true
	if mock.config.onTaskFailedWithError.fail {
		return errors.New("failed to update rewrite task on fail with error")
	}
	return nil
}

func (mock *redisMock) onTaskComplete(task *Task, stats rewriteStats) error {
	mock.calls.onTaskComplete = true
	mock.stats = stats
	if mock.config.onTaskComplete.fail {
		return errors.New("failed to update rewrite task on complete")
	}
	return nil
}

func (mock *rmqMock) rejectDelivery(delivery *amqp.Delivery, log *zerolog.Logger) {
	mock.calls.rejectDelivery = true
}

func (mock *rmqMock) getDeliveriesCh() <-chan amqp.Delivery {
	return nil
}

func (mock *rmqMock) getReqChanErrorsCh() <-chan *amqp.Error {
	return nil
}

func (mock *rmqMock) getRespChanErrorsCh() <-chan *amqp.Error {
	return nil
}

func (mock *rmqMock) notify(task *Task, message Message) error {
	mock.calls.notify = true
	if mock.config.notify.fail {
		return errors.New("failed to notify")
	}
	return nil
}

func (mock *rmqMock) acknowledgeDelivery(delivery *amqp.Delivery) error {
	mock.calls.acknowledgeDelivery = true
	if mock.config.acknowledgeDelivery.fail {
		return errors.New("failed to acknowledge delivery")
	}
	return nil
}

func (mock *s3Mock) getWordList(task *Task) ([]byte, error) {
	mock.calls.getWordList = true
	if mock.config.getWordList.fail {
		return nil, errors.New("mock: failed to load from s3")
	}
	if words, ok := mock.config.getWordList.returnedValue.([]byte); ok {
		return words, nil
	}
	return []byte("bad\npah\n"), nil
}

func (mock *s3Mock) saveResultsFile(task *Task, result []byte) error {
	mock.calls.saveResultsFile = true
	if mock.config.saveResultsFile.fail {
		return errors.New("failed to upload results")
	}
	mock.saved = result
	return nil
}
