package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ProviderError
		want string
	}{
		{
			name: "bucket and key",
			err:  &ProviderError{Op: "PutObject", Provider: ProviderS3, Bucket: "ws", Key: "workspace/1/lib/a.jar", Err: ErrAccessDenied},
			want: "s3 PutObject: ws/workspace/1/lib/a.jar: access denied",
		},
		{
			name: "bucket only",
			err:  &ProviderError{Op: "New", Provider: ProviderS3, Bucket: "ws", Err: ErrBucketNotFound},
			want: "s3 New: ws: bucket not found",
		},
		{
			name: "key only",
			err:  &ProviderError{Op: "Head", Provider: ProviderFile, Key: "a/b", Err: ErrNotFound},
			want: "file Head: a/b: object not found",
		},
		{
			name: "no location",
			err:  &ProviderError{Op: "List", Provider: ProviderFile, Err: ErrThrottled},
			want: "file List: request throttled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	err := error(&ProviderError{Op: "Head", Provider: ProviderFile, Key: "x", Err: ErrNotFound})
	assert.True(t, IsNotFound(err))
	assert.False(t, IsAccessDenied(err))

	var pe *ProviderError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "Head", pe.Op)
}
