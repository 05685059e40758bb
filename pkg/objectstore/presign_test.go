package objectstore

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type stubPresign struct {
	PresignAPI
	put     *s3.PutObjectInput
	expires time.Duration
}

func (s *stubPresign) PresignPutObject(_ context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	s.put = params
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	s.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3.amazonaws.com/" + aws.ToString(params.Key) + "?X-Amz-Signature=abc", Method: "PUT"}, nil
}

func TestPresignUpload(t *testing.T) {
	api := &stubPresign{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewPresigner(api, "avatars")
	p.now = func() time.Time { return fixed }

	up, err := p.PresignUpload(context.Background(), "avatars/user-1/a.png", "image/png")
	if err != nil {
		t.Fatalf("PresignUpload returned error: %v", err)
	}
	if aws.ToString(api.put.Bucket) != "avatars" || aws.ToString(api.put.ContentType) != "image/png" {
		t.Fatalf("unexpected put input %+v", api.put)
	}
	if api.expires != 15*time.Minute {
		t.Fatalf("expected 15 minute expiry, got %v", api.expires)
	}
	if !up.ExpiresAt.Equal(fixed.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", up.ExpiresAt)
	}
}

func TestPresignUploadRequiresBucket(t *testing.T) {
	p := NewPresigner(&stubPresign{}, "")
	if _, err := p.PresignUpload(context.Background(), "k", "image/png"); err == nil {
		t.Fatal("expected error without bucket")
	}
}
