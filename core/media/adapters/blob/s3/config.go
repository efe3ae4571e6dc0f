package s3

type Config struct {
	// Endpoint overrides the AWS endpoint, e.g. a MinIO URL. Empty keeps the SDK default.
	Endpoint        string `env:"ENDPOINT"`
	Region          string `env:"REGION"            envDefault:"us-east-1"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"USE_PATH_STYLE"    envDefault:"true"`

	OriginalBucket string `env:"BUCKET_ORIGINAL" envDefault:"aboba-media-original"`
	DerivedBucket  string `env:"BUCKET_DERIVED"  envDefault:"aboba-media-derived"`
}
