package s3client

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittodav/pkg/storage/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI records inputs and returns canned outputs.
type fakeAPI struct {
	listInputs []*s3.ListObjectsV2Input
	listPages  []*s3.ListObjectsV2Output
	copyInput  *s3.CopyObjectInput
	putInput   *s3.PutObjectInput
	headErr    error
	getErr     error
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listInputs = append(f.listInputs, in)
	page := f.listPages[0]
	f.listPages = f.listPages[1:]
	return page, nil
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(42),
		ContentType:   aws.String("text/plain"),
		LastModified:  aws.Time(time.Unix(1700000000, 0)),
	}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, _ *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("body"))}, nil
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putInput = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.copyInput = in
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeAPI) DeleteObject(_ context.Context, _ *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return &s3.DeleteObjectOutput{}, nil
}

func TestList_FollowsContinuationToken(t *testing.T) {
	api := &fakeAPI{listPages: []*s3.ListObjectsV2Output{
		{
			Contents:              []types.Object{{Key: aws.String("a/1"), Size: aws.Int64(1)}},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
		{
			Contents:    []types.Object{{Key: aws.String("a/2"), Size: aws.Int64(2)}},
			IsTruncated: aws.Bool(false),
		},
	}}
	client := New(api, "bucket")

	first, err := client.List(context.Background(), "a/", "", object.MaxListKeys)
	require.NoError(t, err)
	assert.Equal(t, "next", first.NextToken)
	assert.Equal(t, "a/1", first.Objects[0].Key)

	second, err := client.List(context.Background(), "a/", first.NextToken, object.MaxListKeys)
	require.NoError(t, err)
	assert.Empty(t, second.NextToken)
	assert.EqualValues(t, 2, second.Objects[0].Size)

	assert.Nil(t, api.listInputs[0].ContinuationToken)
	assert.Equal(t, "next", aws.ToString(api.listInputs[1].ContinuationToken))
	assert.Equal(t, int32(object.MaxListKeys), aws.ToInt32(api.listInputs[0].MaxKeys))
}

func TestHead(t *testing.T) {
	client := New(&fakeAPI{}, "bucket")

	obj, err := client.Head(context.Background(), "k")
	require.NoError(t, err)
	assert.EqualValues(t, 42, obj.Size)
	assert.Equal(t, "text/plain", obj.ContentType)
}

func TestNotFoundMapping(t *testing.T) {
	client := New(&fakeAPI{
		headErr: &types.NotFound{},
		getErr:  &types.NoSuchKey{},
	}, "bucket")

	_, err := client.Head(context.Background(), "missing")
	assert.ErrorIs(t, err, object.ErrObjectNotFound)

	_, err = client.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, object.ErrObjectNotFound)
}

func TestCopy(t *testing.T) {
	api := &fakeAPI{}
	client := New(api, "bucket")

	require.NoError(t, client.Copy(context.Background(), "dir/a file.txt", "dst.txt", ""))
	assert.Equal(t, "bucket/dir/a%20file.txt", aws.ToString(api.copyInput.CopySource))
	assert.Equal(t, types.MetadataDirectiveCopy, api.copyInput.MetadataDirective)

	require.NoError(t, client.Copy(context.Background(), "a", "a", "application/pdf"))
	assert.Equal(t, types.MetadataDirectiveReplace, api.copyInput.MetadataDirective)
	assert.Equal(t, "application/pdf", aws.ToString(api.copyInput.ContentType))
}

func TestPut(t *testing.T) {
	api := &fakeAPI{}
	client := New(api, "bucket")

	require.NoError(t, client.Put(context.Background(), "k", []byte("hello"), "text/plain"))
	assert.EqualValues(t, 5, aws.ToInt64(api.putInput.ContentLength))
	assert.Equal(t, "text/plain", aws.ToString(api.putInput.ContentType))
}
