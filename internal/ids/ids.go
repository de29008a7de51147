package ids

import "github.com/segmentio/ksuid"

// New returns a k-sortable id with 128 bits of random payload.
func New() string {
	return ksuid.New().String()
}
