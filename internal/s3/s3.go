package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrObjectTooLarge = errors.New("object exceeds the upload size limit")

type FileStore struct {
	Client     *s3.Client
	downloader *manager.Downloader
}

type S3Config struct {
	EndpointURL string
	Region      string
	AccessKey   string
	SecretKey   string
}

func NewFileStore(ctx context.Context, conf S3Config) (*FileStore, error) {

	creds := credentials.NewStaticCredentialsProvider(conf.AccessKey, conf.SecretKey, "")

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(conf.Region),
		config.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	if conf.EndpointURL != "" {
		cfg.BaseEndpoint = aws.String(conf.EndpointURL)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &FileStore{Client: client, downloader: manager.NewDownloader(client)}, nil

}

// Download fetches an object into memory together with its content type. Objects larger
// than maxBytes are refused before any body is transferred.
func (fs *FileStore) Download(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, string, error) {

	head, err := fs.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})

	if err != nil {
		return nil, "", fmt.Errorf("failed to stat file: %w", err)
	}

	if maxBytes > 0 && aws.ToInt64(head.ContentLength) > maxBytes {
		return nil, "", fmt.Errorf("%w: %s is %d bytes", ErrObjectTooLarge, key, aws.ToInt64(head.ContentLength))
	}

	buf := manager.NewWriteAtBuffer(make([]byte, 0, aws.ToInt64(head.ContentLength)))

	_, err = fs.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})

	if err != nil {
		return nil, "", fmt.Errorf("failed to download file: %w", err)
	}

	return buf.Bytes(), aws.ToString(head.ContentType), nil

}
