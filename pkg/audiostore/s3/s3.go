package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/ec2rolecreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store resolves object names in a bucket to presigned GET URLs, so an
// external provider can fetch private audio without shared credentials.
type Store struct {
	bucket  string
	debug   bool
	presign *s3.PresignClient
	expires time.Duration
}

func New(key, secret, region, bucket string, debug bool) (*Store, error) {
	var provider aws.CredentialsProvider
	if key == "" && secret == "" {
		// Load credentials from EC2 Instance Role
		provider = ec2rolecreds.New()
	} else {
		provider = credentials.NewStaticCredentialsProvider(key, secret, "")
	}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(provider),
		config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3: couldn't load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &Store{
		bucket:  bucket,
		debug:   debug,
		presign: s3.NewPresignClient(client),
		expires: 1 * time.Hour,
	}, nil
}

func (s *Store) URL(ctx context.Context, name string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	}, s3.WithPresignExpires(s.expires))
	if err != nil {
		return "", fmt.Errorf("s3: couldn't presign %s: %w", name, err)
	}
	return req.URL, nil
}
