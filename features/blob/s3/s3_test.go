package s3

import (
	"context"
	"testing"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

// fakeS3 records PutObject calls. Small uploads never hit the multipart path.
type fakeS3 struct {
	bucket string
	key    string
	ctype  string
}

func (f *fakeS3) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	f.bucket = *in.Bucket
	f.key = *in.Key
	f.ctype = *in.ContentType
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *awss3.CreateMultipartUploadInput, ...func(*awss3.Options)) (*awss3.CreateMultipartUploadOutput, error) {
	return &awss3.CreateMultipartUploadOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *awss3.UploadPartInput, ...func(*awss3.Options)) (*awss3.UploadPartOutput, error) {
	return &awss3.UploadPartOutput{}, nil
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *awss3.CompleteMultipartUploadInput, ...func(*awss3.Options)) (*awss3.CompleteMultipartUploadOutput, error) {
	return &awss3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *awss3.AbortMultipartUploadInput, ...func(*awss3.Options)) (*awss3.AbortMultipartUploadOutput, error) {
	return &awss3.AbortMultipartUploadOutput{}, nil
}

func TestUploadBuildsPublicURL(t *testing.T) {
	fake := &fakeS3{}
	u, err := New(Options{
		Client:        fake,
		Bucket:        "t4chat-media",
		Prefix:        "/images/",
		PublicBaseURL: "https://cdn.example.com/",
	})
	require.NoError(t, err)

	url, err := u.Upload(context.Background(), "cat.png", []byte{1, 2, 3}, "image/png")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/images/cat.png", url)
	require.Equal(t, "t4chat-media", fake.bucket)
	require.Equal(t, "images/cat.png", fake.key)
	require.Equal(t, "image/png", fake.ctype)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	_, err = New(Options{Client: &fakeS3{}, Bucket: "b"})
	require.Error(t, err)
}
