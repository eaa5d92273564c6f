package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/smallbiznis/tenantgate/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucketAPI struct {
	err    error
	bucket string
}

func (f *fakeBucketAPI) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.bucket = *in.Bucket
	return &s3.HeadBucketOutput{}, f.err
}

func testCreds() tenantctx.StorageCredentials {
	return tenantctx.StorageCredentials{
		Endpoint:        "http://minio:9000",
		Region:          "us-east-1",
		Bucket:          "acme",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "secret",
	}
}

func TestNewClientBuildsPathStyleClient(t *testing.T) {
	c, err := NewClient(context.Background(), testCreds())
	require.NoError(t, err)
	assert.Equal(t, "acme", c.Bucket())

	_, ok := c.api.(*s3.Client)
	assert.True(t, ok)
}

func TestNewClientRejectsIncompleteCredentials(t *testing.T) {
	creds := testCreds()
	creds.SecretAccessKey = ""
	_, err := NewClient(context.Background(), creds)
	assert.ErrorIs(t, err, ErrIncompleteCredentials)
}

func TestPingUsesBucket(t *testing.T) {
	fake := &fakeBucketAPI{}
	c := &Client{api: fake, bucket: "acme"}
	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, "acme", fake.bucket)

	fake.err = errors.New("forbidden")
	assert.Error(t, c.Ping(context.Background()))
}

func TestKeyHidesSecretButSeparatesCredentials(t *testing.T) {
	a := testCreds()
	b := testCreds()
	b.SecretAccessKey = "rotated"

	assert.NotContains(t, Key(a), "secret")
	assert.NotEqual(t, Key(a), Key(b))
	assert.Equal(t, Key(a), Key(testCreds()))
}

func TestRegistrySharesClientPerCredentials(t *testing.T) {
	var mu sync.Mutex
	built := 0
	reg := NewRegistry(func(ctx context.Context, creds tenantctx.StorageCredentials) (*Client, error) {
		mu.Lock()
		built++
		mu.Unlock()
		return &Client{api: &fakeBucketAPI{}, bucket: creds.Bucket}, nil
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Get(context.Background(), testCreds())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, built)

	require.NoError(t, reg.Evict(testCreds()))
	assert.Equal(t, 0, reg.Len())
}
