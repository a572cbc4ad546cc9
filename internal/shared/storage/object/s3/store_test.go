package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "tenant/file.pdf", want: "tenant/file.pdf"},
		{name: "simple prefix", prefix: "staged", key: "tenant/file.pdf", want: "staged/tenant/file.pdf"},
		{name: "prefix and key slashes", prefix: "/staged/", key: "/tenant/file.pdf", want: "staged/tenant/file.pdf"},
		{name: "empty key", prefix: "staged", key: "", want: "staged"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

type fakeS3 struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(params.Key)] = body
	f.puts = append(f.puts, params)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body := f.objects[aws.ToString(params.Key)]
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestSaveUsesPrefixAndEncryption(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := &Store{client: fake, bucket: "docs", prefix: "staged", kmsKeyID: "kms-1"}

	obj, err := store.Save(context.Background(), "12345678000190", "dre.pdf", strings.NewReader("%PDF-1.7 body"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if obj.SizeBytes != int64(len("%PDF-1.7 body")) {
		t.Fatalf("unexpected size %d", obj.SizeBytes)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("expected one put, got %d", len(fake.puts))
	}
	put := fake.puts[0]
	if !strings.HasPrefix(aws.ToString(put.Key), "staged/") {
		t.Fatalf("expected prefixed key, got %s", aws.ToString(put.Key))
	}
	if put.ServerSideEncryption != s3types.ServerSideEncryptionAwsKms {
		t.Fatalf("expected kms encryption, got %s", put.ServerSideEncryption)
	}

	rc, err := store.Open(context.Background(), obj.Key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "%PDF-1.7 body" {
		t.Fatalf("unexpected body %q", got)
	}
}
