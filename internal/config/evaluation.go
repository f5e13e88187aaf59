package config

// EvaluationConfig tunes the evaluation engine.
type EvaluationConfig struct {
	// BucketHash selects the bucketing hash. Changing it reshuffles every merchant.
	BucketHash string `envconfig:"BUCKET_HASH" default:"sha256" validate:"oneof=sha256 murmur3"`

	// Concurrency bounds parallel evaluations when computing every flag for one merchant.
	Concurrency int `envconfig:"CONCURRENCY" default:"8" validate:"min=1,max=256"`
}
