package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration    = errors.New("invalid configuration")
	ErrStoreUnavailable = errors.New("watermark store unavailable")
	ErrPackaging        = errors.New("packaging failed")
	ErrDelivery         = errors.New("delivery failed")
	ErrAllFeedsFailed   = errors.New("every feed failed")
)

// FeedError is a fetch or parse failure of a single feed.
type FeedError struct {
	Source FeedSource
	Err    error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("feed %s: %v", e.Source, e.Err)
}

func (e *FeedError) Unwrap() error {
	return e.Err
}
