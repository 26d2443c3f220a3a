// Package s3 stores artifacts in an S3 bucket (or an S3-compatible endpoint).
package s3

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"pdfbot/internal/models"
	"pdfbot/internal/pkg/errors"
)

const Name = "s3"

// PutObjectAPI is the subset of the S3 client the plugin needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// PrefixFunc derives the key prefix from the artifact and its job.
type PrefixFunc func(localPath string, job *models.Job) string

type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	Endpoint        string
	Prefix          string
	PrefixFunc      PrefixFunc
	// RemoveLocal deletes the local artifact after a successful upload.
	RemoveLocal bool
}

func (c Config) validate() error {
	missing := ""
	switch {
	case c.AccessKeyID == "":
		missing = "access key id"
	case c.SecretAccessKey == "":
		missing = "secret access key"
	case c.Region == "":
		missing = "region"
	case c.Bucket == "":
		missing = "bucket"
	}
	if missing != "" {
		return errors.Configurationf("s3: %s is required", missing)
	}
	return nil
}

type Plugin struct {
	api PutObjectAPI
	cfg Config
}

// New builds a plugin backed by a real S3 client.
func New(cfg Config) (*Plugin, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opts := awss3.Options{
		Region:      cfg.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return &Plugin{api: awss3.New(opts), cfg: cfg}, nil
}

// NewWithAPI builds a plugin around an existing client.
func NewWithAPI(cfg Config, api PutObjectAPI) (*Plugin, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Plugin{api: api, cfg: cfg}, nil
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Upload(ctx context.Context, localPath string, job *models.Job) (models.Location, error) {
	key := p.key(localPath, job)

	f, err := os.Open(localPath)
	if err != nil {
		return models.Location{}, errors.WrapWithCode(err, errors.CodeStorage, "s3.upload", "open artifact")
	}
	defer f.Close()

	_, err = p.api.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return models.Location{}, errors.WrapWithCode(err, errors.CodeStorage, "s3.upload", "put object").
			WithField("bucket", p.cfg.Bucket).
			WithField("key", key)
	}

	if p.cfg.RemoveLocal {
		f.Close()
		_ = os.Remove(localPath)
	}

	return models.Location{
		Provider: Name,
		Bucket:   p.cfg.Bucket,
		Region:   p.cfg.Region,
		Key:      key,
	}, nil
}

func (p *Plugin) key(localPath string, job *models.Job) string {
	prefix := p.cfg.Prefix
	if p.cfg.PrefixFunc != nil {
		prefix = p.cfg.PrefixFunc(localPath, job)
	}
	return path.Join(prefix, filepath.Base(localPath))
}
