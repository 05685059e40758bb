/**
 * @description
 * Presigned S3 URLs for browser uploads. Clients PUT directly to the bucket
 * and only the resulting object key is stored on the profile.
 */
package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// UploadURLExpiry bounds how long a presigned upload stays valid.
const UploadURLExpiry = 15 * time.Minute

// PresignAPI is the subset of s3.PresignClient used here.
type PresignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Upload describes a presigned PUT.
type Upload struct {
	UploadURL string    `json:"uploadUrl"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Presigner issues presigned URLs for one bucket.
type Presigner struct {
	api    PresignAPI
	bucket string
	now    func() time.Time
}

func NewPresigner(api PresignAPI, bucket string) *Presigner {
	return &Presigner{api: api, bucket: bucket, now: time.Now}
}

// NewPresignerFromClient wraps an S3 client.
func NewPresignerFromClient(client *s3.Client, bucket string) *Presigner {
	return NewPresigner(s3.NewPresignClient(client), bucket)
}

// PresignUpload returns a URL accepting a single PUT of contentType at key.
func (p *Presigner) PresignUpload(ctx context.Context, key, contentType string) (*Upload, error) {
	if p.bucket == "" {
		return nil, fmt.Errorf("presign upload: bucket not configured")
	}
	req, err := p.api.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(UploadURLExpiry))
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	return &Upload{UploadURL: req.URL, Key: key, ExpiresAt: p.now().Add(UploadURLExpiry)}, nil
}

// PresignDownload returns a time-limited GET URL for key.
func (p *Presigner) PresignDownload(ctx context.Context, key string) (string, error) {
	req, err := p.api.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(UploadURLExpiry))
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return req.URL, nil
}
