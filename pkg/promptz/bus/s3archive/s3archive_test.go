package s3archive_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/cremich/promptz-sub001/pkg/promptz/bus"
	"github.com/cremich/promptz-sub001/pkg/promptz/bus/s3archive"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects of a single bucket in memory and pages listings by
// pageSize keys.
type fakeS3 struct {
	mu            sync.Mutex
	bucketExists  bool
	createdBucket string
	objects       map[string][]byte
	contentTypes  map[string]string
	pageSize      int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		bucketExists: true,
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
		pageSize:     2,
	}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.contentTypes[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart upload not supported by fake")
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart upload not supported by fake")
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart upload not supported by fake")
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if !strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			continue
		}
		if in.StartAfter != nil && k <= *in.StartAfter {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	offset := 0
	if in.ContinuationToken != nil {
		offset, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := offset + f.pageSize
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[offset:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.bucketExists {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucketExists = true
	f.createdBucket = aws.ToString(in.Bucket)
	return &s3.CreateBucketOutput{}, nil
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func archiveEvent(i int, detailType string) *promptz.Event {
	return &promptz.Event{
		ID:         fmt.Sprintf("evt-%d", i),
		Source:     promptz.DefaultEventSource,
		DetailType: detailType,
		Time:       base.Add(time.Duration(i) * time.Hour),
		Detail: &promptz.Entity{
			ID:        fmt.Sprintf("p-%d", i),
			Name:      "Git Helper",
			Tags:      []string{"git"},
			Scope:     promptz.ScopePublic,
			CreatedAt: base,
			UpdatedAt: base,
		},
	}
}

func newTestArchive(t *testing.T, client *fakeS3) *s3archive.Archive {
	t.Helper()
	a, err := s3archive.NewWithClient(context.Background(), client, s3archive.Config{
		Bucket: "promptz-events",
		Prefix: "/archive/",
	})
	require.NoError(t, err)
	return a
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := s3archive.NewWithClient(context.Background(), newFakeS3(), s3archive.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name is required")
}

func TestArchive_CreateBucketIfNotExist(t *testing.T) {
	client := newFakeS3()
	client.bucketExists = false

	_, err := s3archive.NewWithClient(context.Background(), client, s3archive.Config{
		Bucket:                 "promptz-events",
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "promptz-events", client.createdBucket)
}

func TestArchive_Key(t *testing.T) {
	a := newTestArchive(t, newFakeS3())
	e := archiveEvent(0, "prompt.saved")
	assert.Equal(t, "archive/2025/03/01/12/20250301T120000.000000000Z-evt-0.json", a.Key(e))
}

func TestArchive_PublishAndReplay(t *testing.T) {
	client := newFakeS3()
	a := newTestArchive(t, client)
	ctx := context.Background()

	detailTypes := []string{"prompt.saved", "prompt.copied", "rule.saved", "prompt.deleted", "agent.saved"}
	var published []*promptz.Event
	// publish out of order; replay must follow emission time
	for _, i := range []int{3, 0, 4, 1, 2} {
		e := archiveEvent(i, detailTypes[i])
		require.NoError(t, a.Publish(ctx, e))
		published = append(published, e)
	}
	require.Len(t, client.objects, 5)
	for _, ct := range client.contentTypes {
		assert.Equal(t, "application/cloudevents+json", ct)
	}

	t.Run("All", func(t *testing.T) {
		var got []*promptz.Event
		require.NoError(t, a.Replay(ctx, bus.Filter{}, func(e *promptz.Event) error {
			got = append(got, e)
			return nil
		}))
		require.Len(t, got, 5)
		for i, e := range got {
			assert.Equal(t, fmt.Sprintf("evt-%d", i), e.ID)
		}
		assert.Empty(t, cmp.Diff(published[1], got[0]))
	})

	t.Run("TimeWindow", func(t *testing.T) {
		var ids []string
		filter := bus.Filter{Since: base.Add(time.Hour), Until: base.Add(3 * time.Hour)}
		require.NoError(t, a.Replay(ctx, filter, func(e *promptz.Event) error {
			ids = append(ids, e.ID)
			return nil
		}))
		assert.Equal(t, []string{"evt-1", "evt-2"}, ids)
	})

	t.Run("DetailTypes", func(t *testing.T) {
		var ids []string
		filter := bus.Filter{DetailTypes: []string{"prompt.saved", "agent.saved"}}
		require.NoError(t, a.Replay(ctx, filter, func(e *promptz.Event) error {
			ids = append(ids, e.ID)
			return nil
		}))
		assert.Equal(t, []string{"evt-0", "evt-4"}, ids)
	})

	t.Run("StopsOnCallbackError", func(t *testing.T) {
		calls := 0
		err := a.Replay(ctx, bus.Filter{}, func(e *promptz.Event) error {
			calls++
			return errors.New("stop")
		})
		assert.EqualError(t, err, "stop")
		assert.Equal(t, 1, calls)
	})
}

func TestArchive_CorruptObject(t *testing.T) {
	client := newFakeS3()
	a := newTestArchive(t, client)
	client.objects["archive/2025/03/01/12/garbage.json"] = []byte("{not json")

	err := a.Replay(context.Background(), bus.Filter{}, func(e *promptz.Event) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "garbage.json")
}
