package s3client

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"phonorule.dev/machine/logger"
)

const scheme = "s3://"

var ErrNoSession = errors.New("s3: no session available")

type Config struct {
	BucketName  string `envconfig:"MACHINE_S3_BUCKET" required:"true"`
	Env         string `envconfig:"MACHINE_ENV" default:"prod"`
	Region      string `envconfig:"MACHINE_AWS_REGION" required:"true"`
	Endpoint    string `envconfig:"MACHINE_AWS_ENDPOINT_URL" default:""`
	AccessKeyID string `envconfig:"MACHINE_AWS_ACCESS_ID" default:""`
	AccessKey   string `envconfig:"MACHINE_AWS_ACCESS_KEY" default:""`
}

// Client moves word lists, grammars and results in and out of one bucket. A background
// goroutine owns the session and replaces it when a request fails.
type Client struct {
	config   Config
	sessions <-chan *session.Session
	failures chan<- error
	done     chan<- struct{}
}

var clientLogger = logger.NewLogger("S3Client")
var sdkLogger = logger.NewLogger("S3-SDK")

// ObjectKey reports whether path names an object ("s3://key") and returns its key.
func ObjectKey(path string) (string, bool) {
	if !strings.HasPrefix(path, scheme) {
		return "", false
	}
	key := strings.TrimLeft(strings.TrimPrefix(path, scheme), "/")
	return key, key != ""
}

func New() (*Client, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		clientLogger.Err(err).Caller().Msg("Failed to get proper variables from environment")
		return nil, err
	}
	sess, err := config.newSession()
	if err != nil {
		return nil, err
	}
	sessions := make(chan *session.Session)
	failures := make(chan error)
	done := make(chan struct{}, 1)
	go config.keepSession(sess, sessions, failures, done)
	return &Client{config: config, sessions: sessions, failures: failures, done: done}, nil
}

func (client *Client) Upload(key string, body []byte) error {
	params := &s3manager.UploadInput{
		Bucket: aws.String(client.config.BucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	return client.retry(func(sess *session.Session) error {
		log := clientLogger.With().Str("key", key).Int("bytes", len(body)).Logger()
		log.Debug().Msg("Uploading the file")
		uploader := s3manager.NewUploader(sess.Copy(&aws.Config{Logger: sdkLoggerFor(key)}))
		_, err := uploader.Upload(params)
		return err
	})
}

func (client *Client) Download(key string) ([]byte, error) {
	params := &s3.GetObjectInput{
		Bucket: aws.String(client.config.BucketName),
		Key:    aws.String(key),
	}
	var data []byte
	err := client.retry(func(sess *session.Session) error {
		log := clientLogger.With().Str("key", key).Logger()
		downloader := s3manager.NewDownloader(sess.Copy(&aws.Config{Logger: sdkLoggerFor(key)}))
		buf := aws.NewWriteAtBuffer([]byte{})
		size, err := downloader.Download(buf, params)
		if err != nil {
			log.Error().Err(err).Msg("Failed to download file")
			return err
		}
		log.Debug().Int64("bytes", size).Msg("Downloaded file")
		data = buf.Bytes()
		return nil
	})
	return data, err
}

func (client *Client) Close() {
	client.done <- struct{}{}
}

// retry runs do with the current session and once more with a fresh one if it fails.
func (client *Client) retry(do func(sess *session.Session) error) error {
	sess := <-client.sessions
	if sess == nil {
		return ErrNoSession
	}
	err := do(sess)
	if err == nil {
		return nil
	}
	select {
	case client.failures <- err:
		sess = <-client.sessions
	case sess = <-client.sessions:
	}
	if sess == nil {
		return fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	return do(sess)
}

func (config Config) keepSession(curr *session.Session, sessions chan<- *session.Session, failures <-chan error, done <-chan struct{}) {
	for {
		select {
		case sessions <- curr:
		case err := <-failures:
			clientLogger.Error().Err(err).Msg("Caught error while using S3 session, trying to refresh it")
			sess, err := config.newSession()
			if err != nil {
				clientLogger.Error().Err(err).Msg("Caught error while refreshing S3 session")
				curr = nil
				continue
			}
			curr = sess
			clientLogger.Info().Msg("Successfully refreshed session")
		case <-done:
			clientLogger.Info().Msg("Closing client")
			return
		}
	}
}

// newSession prefers the instance role and falls back to static credentials.
func (config Config) newSession() (*session.Session, error) {
	sess, err := session.NewSession(config.instanceConfig())
	if err == nil {
		if _, err = sts.New(sess).GetCallerIdentity(&sts.GetCallerIdentityInput{}); err == nil {
			clientLogger.Info().Msg("S3 session successfully initialized using instance role")
			return sess, nil
		}
	}
	clientLogger.Info().Msg("Could not initialize S3 session using instance role, trying env credentials")
	envConfig, err := config.staticConfig()
	if err != nil {
		return nil, err
	}
	sess, err = session.NewSession(envConfig)
	if err != nil {
		clientLogger.Error().Err(err).Msg("Could not initialize S3 session")
		return nil, err
	}
	if _, err = sts.New(sess).GetCallerIdentity(&sts.GetCallerIdentityInput{}); err != nil {
		clientLogger.Error().Err(err).Msg("Could not initialize S3 session")
		return nil, fmt.Errorf("could not initialize S3 session: %w", err)
	}
	clientLogger.Info().Msg("S3 session successfully initialized using env credentials")
	return sess, nil
}

func (config Config) instanceConfig() *aws.Config {
	return aws.NewConfig().
		WithRegion(config.Region).
		WithMaxRetries(4)
}

func (config Config) staticConfig() (*aws.Config, error) {
	creds := credentials.NewStaticCredentials(config.AccessKeyID, config.AccessKey, "")
	if _, err := creds.Get(); err != nil {
		clientLogger.Error().Err(err).Msg("Error with credentials from environment")
		return nil, err
	}
	cfg := aws.NewConfig().
		WithRegion(config.Region).
		WithMaxRetries(4).
		WithCredentials(creds).
		WithLogLevel(aws.LogDebug)
	if config.Env == "dev" && config.Endpoint != "" {
		cfg = cfg.WithEndpoint(config.Endpoint).WithS3ForcePathStyle(true)
	}
	return cfg, nil
}

type s3Logger struct {
	log zerolog.Logger
}

func sdkLoggerFor(key string) *s3Logger {
	return &s3Logger{sdkLogger.With().Str("key", key).Logger()}
}

func (l *s3Logger) Log(v ...interface{}) {
	l.log.Debug().Msg(fmt.Sprint(v...))
}
