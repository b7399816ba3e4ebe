package worker

import (
	"phonorule.dev/machine/s3client"
)

type s3Transactions interface {
	saveResultsFile(task *Task, result []byte) error
	getWordList(task *Task) ([]byte, error)
	close()
}

type s3ClientWrapper struct {
	s3Client *s3client.Client
}

func (wrapper *s3ClientWrapper) close() {
	wrapper.s3Client.Close()
}

func (wrapper *s3ClientWrapper) saveResultsFile(task *Task, result []byte) error {
	return wrapper.s3Client.Upload(getResultsFileKey(task), result)
}

func (wrapper *s3ClientWrapper) getWordList(task *Task) ([]byte, error) {
	return wrapper.s3Client.Download(task.rewriteTask.InputFileKey)
}
