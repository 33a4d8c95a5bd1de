package discovery

import "errors"

var (
	// ErrBucketNotFound is returned for a bucket with no directory
	// under the data root.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrSymbolNotFound is returned when neither a series id nor a
	// symbol name matches any file in the bucket.
	ErrSymbolNotFound = errors.New("symbol not found")
)
