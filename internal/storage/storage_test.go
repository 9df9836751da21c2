package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	k1 := ObjectKey("properties/7", "Frente.JPG")
	k2 := ObjectKey("properties/7", "Frente.JPG")

	assert.True(t, strings.HasPrefix(k1, "properties/7/"))
	assert.True(t, strings.HasSuffix(k1, ".jpg"))
	assert.NotEqual(t, k1, k2, "keys must be unique")

	assert.False(t, strings.Contains(ObjectKey("p", "x.aVeryLongExtension"), "aVeryLong"))
}

func TestLocalBucketPutDelete(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBucket(dir, "/uploads/")
	require.NoError(t, err)

	url, err := b.Put(context.Background(), "properties/1/a.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/properties/1/a.png", url)

	data, err := os.ReadFile(filepath.Join(dir, "properties", "1", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, b.Delete(context.Background(), "properties/1/a.png"))
	_, err = os.Stat(filepath.Join(dir, "properties", "1", "a.png"))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, b.Delete(context.Background(), "properties/1/a.png"), "deleting twice is fine")
}

func TestLocalBucketRejectsBadKeys(t *testing.T) {
	b, err := NewLocalBucket(t.TempDir(), "/uploads")
	require.NoError(t, err)

	for _, key := range []string{"", "/etc/passwd", "../escape.png", `a\b.png`} {
		_, err := b.Put(context.Background(), key, "image/png", strings.NewReader("x"))
		assert.Error(t, err, "key %q", key)
	}
}

func TestLocalBucketTooLarge(t *testing.T) {
	b, err := NewLocalBucket(t.TempDir(), "/uploads")
	require.NoError(t, err)

	big := io.LimitReader(zeroReader{}, MaxObjectSize+1)
	_, err = b.Put(context.Background(), "big.jpg", "image/jpeg", big)
	assert.True(t, errors.Is(err, ErrTooLarge))
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	bodies  [][]byte
	deletes []string
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deletes = append(f.deletes, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3BucketPut(t *testing.T) {
	fake := &fakeS3{}
	b := newS3Bucket(fake, S3Config{Bucket: "arrienda-images", Region: "sa-east-1"})

	url, err := b.Put(context.Background(), "properties/3/x.webp", "image/webp", bytes.NewReader([]byte("webp")))
	require.NoError(t, err)
	assert.Equal(t, "https://arrienda-images.s3.sa-east-1.amazonaws.com/properties/3/x.webp", url)

	require.Len(t, fake.puts, 1)
	assert.Equal(t, "arrienda-images", aws.ToString(fake.puts[0].Bucket))
	assert.Equal(t, "image/webp", aws.ToString(fake.puts[0].ContentType))
	assert.Equal(t, int64(4), aws.ToInt64(fake.puts[0].ContentLength))
	assert.Equal(t, "webp", string(fake.bodies[0]))
}

func TestS3BucketPublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  S3Config
		want string
	}{
		{"explicit public URL", S3Config{Bucket: "b", PublicURL: "https://cdn.example.com/"}, "https://cdn.example.com/k.png"},
		{"custom endpoint", S3Config{Bucket: "b", Endpoint: "https://storage.example.com"}, "https://storage.example.com/b/k.png"},
		{"aws default", S3Config{Bucket: "b", Region: "us-east-1"}, "https://b.s3.us-east-1.amazonaws.com/k.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newS3Bucket(&fakeS3{}, tt.cfg)
			url, err := b.Put(context.Background(), "k.png", "image/png", strings.NewReader("x"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, url)
		})
	}
}

func TestS3BucketDeleteAndErrors(t *testing.T) {
	fake := &fakeS3{}
	b := newS3Bucket(fake, S3Config{Bucket: "b", Region: "us-east-1"})

	require.NoError(t, b.Delete(context.Background(), "properties/1/a.png"))
	assert.Equal(t, []string{"properties/1/a.png"}, fake.deletes)

	fake.err = errors.New("access denied")
	_, err := b.Put(context.Background(), "k.png", "image/png", strings.NewReader("x"))
	assert.ErrorContains(t, err, "access denied")
	assert.Error(t, b.Delete(context.Background(), "k.png"))
}
