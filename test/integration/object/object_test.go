//go:build integration

package object_test

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/storage/object"
	"github.com/marmos91/dittodav/pkg/storage/object/minioclient"
	"github.com/marmos91/dittodav/pkg/storage/object/s3client"
	storagetesting "github.com/marmos91/dittodav/pkg/storage/testing"
	"github.com/marmos91/dittodav/pkg/vpath"
)

const region = "us-east-1"

// localstackEndpoint returns the S3 endpoint of the Localstack instance.
//
// To start Localstack:
//
//	docker run --rm -p 4566:4566 localstack/localstack
func localstackEndpoint() string {
	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "http://localhost:4566"
}

// setupBucket creates bucketName and removes it, with all its objects, when
// the test ends.
func setupBucket(t *testing.T, bucketName string) {
	t.Helper()
	ctx := context.Background()

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion(region),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err, "load AWS config")

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(localstackEndpoint())
		o.UsePathStyle = true
	})

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucketName)})
	require.NoError(t, err, "create bucket %s", bucketName)

	t.Cleanup(func() {
		paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{Bucket: aws.String(bucketName)})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				break
			}
			for _, obj := range page.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucketName), Key: obj.Key})
			}
		}
		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucketName)})
	})
}

func newS3Client(t *testing.T, bucketName string) *s3client.Client {
	t.Helper()
	client, err := s3client.NewFromConfig(context.Background(), s3client.Config{
		Bucket:          bucketName,
		Region:          region,
		Endpoint:        localstackEndpoint(),
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)
	return client
}

func newMinioClient(t *testing.T, bucketName string) *minioclient.Client {
	t.Helper()
	u, err := url.Parse(localstackEndpoint())
	require.NoError(t, err)

	client, err := minioclient.New(minioclient.Config{
		Endpoint:        u.Host,
		Bucket:          bucketName,
		Region:          region,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UseSSL:          u.Scheme == "https",
	})
	require.NoError(t, err)
	return client
}

// runSuite runs the adapter contract suite with a fresh root per test so
// tests sharing the bucket never see each other's keys.
func runSuite(t *testing.T, typeName string, client object.Client) {
	var counter atomic.Int32
	suite := &storagetesting.AdapterTestSuite{
		NewAdapter: func(t *testing.T) storage.Adapter {
			root := fmt.Sprintf("/%s-%d", typeName, counter.Add(1))
			adapter, err := object.New(typeName, client, object.Config{Root: root})
			require.NoError(t, err)
			return adapter
		},
	}
	suite.Run(t)
}

// TestS3Adapter_Integration runs the storage contract against Localstack
// through the AWS SDK.
//
// Run with: go test -tags=integration ./test/integration/...
func TestS3Adapter_Integration(t *testing.T) {
	bucketName := "dittodav-s3-test"
	setupBucket(t, bucketName)

	runSuite(t, s3client.Type, newS3Client(t, bucketName))
}

// TestMinioAdapter_Integration runs the same contract through minio-go.
func TestMinioAdapter_Integration(t *testing.T) {
	bucketName := "dittodav-minio-test"
	setupBucket(t, bucketName)

	runSuite(t, minioclient.Type, newMinioClient(t, bucketName))
}

// TestS3Adapter_Paging checks that folder listings follow continuation
// tokens past the 1000 keys a single ListObjectsV2 call returns.
func TestS3Adapter_Paging(t *testing.T) {
	ctx := context.Background()
	bucketName := "dittodav-paging-test"
	setupBucket(t, bucketName)

	const files = 1005

	for name, client := range map[string]object.Client{
		s3client.Type:    newS3Client(t, bucketName),
		minioclient.Type: newMinioClient(t, bucketName),
	} {
		t.Run(name, func(t *testing.T) {
			root := "/" + name
			for i := 0; i < files; i++ {
				key := fmt.Sprintf("%s/big/file-%04d", name, i)
				require.NoError(t, client.Put(ctx, key, []byte("x"), "text/plain"))
			}

			adapter, err := object.New(name, client, object.Config{Root: root})
			require.NoError(t, err)

			node, err := adapter.Get(ctx, vpath.New("big"), nil)
			require.NoError(t, err)

			children, err := node.Children(ctx)
			require.NoError(t, err)
			require.Len(t, children, files)

			seen := make(map[string]struct{}, files)
			for _, child := range children {
				seen[child.Path().String()] = struct{}{}
			}
			assert.Len(t, seen, files, "no child is listed twice")
		})
	}
}
