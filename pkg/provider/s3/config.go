// Package s3 implements the remote workspace backend on S3-compatible object
// storage.
package s3

// Config configures an S3 backend.
//
// Credentials resolve through the AWS SDK v2 default chain unless
// AccessKeyID/SecretAccessKey are both set. Region falls back to us-east-1
// for AWS; when Endpoint points at an S3-compatible store (MinIO, Ceph RGW,
// Ozone S3G) no region default is applied.
type Config struct {
	// Bucket holds the remote workspace (required).
	Bucket string

	// Region is the AWS region.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	Endpoint string

	// Profile is the shared config profile name.
	Profile string

	// AccessKeyID and SecretAccessKey are explicit static credentials.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle puts the bucket in the URL path. Most S3-compatible
	// stores need it.
	ForcePathStyle bool

	// MaxKeys is the default List page size. Values over 1000 are clamped.
	MaxKeys int
}

// DefaultMaxKeys is the default page size for List operations.
const DefaultMaxKeys = 1000

// MaxAllowedKeys is the maximum page size allowed by S3.
const MaxAllowedKeys = 1000

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "access key ID and secret access key must be set together",
		}
	}
	return nil
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}
