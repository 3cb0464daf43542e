package search

// BatchProgress is called after each embedding batch completes. completed
// is the running total of documents processed; total is the overall count.
type BatchProgress func(completed, total int)

// BatchError is called when an embedding batch fails. batchStart and
// batchEnd are the document offsets of the failed batch.
type BatchError func(batchStart, batchEnd int, err error)

// IndexOption configures one Index call.
type IndexOption func(*IndexConfig)

// IndexConfig holds the resolved configuration for an Index call.
type IndexConfig struct {
	progress   BatchProgress
	batchError BatchError
}

// NewIndexConfig applies all options and returns the resolved config.
func NewIndexConfig(opts ...IndexOption) IndexConfig {
	var cfg IndexConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Progress returns the progress callback, or nil if none was set.
func (c IndexConfig) Progress() BatchProgress { return c.progress }

// BatchError returns the batch error callback, or nil if none was set.
func (c IndexConfig) BatchError() BatchError { return c.batchError }

// WithProgress registers a callback invoked after each embedding batch is
// generated and saved.
func WithProgress(fn BatchProgress) IndexOption {
	return func(c *IndexConfig) { c.progress = fn }
}

// WithBatchError registers a callback invoked when an embedding batch
// fails, so callers can log each upstream error as it occurs.
func WithBatchError(fn BatchError) IndexOption {
	return func(c *IndexConfig) { c.batchError = fn }
}
