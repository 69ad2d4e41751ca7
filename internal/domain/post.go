package domain

import (
	"slices"
	"time"
)

// FeedSource is the URL of one configured feed.
type FeedSource string

type Post struct {
	Source      FeedSource
	PublishedAt time.Time
	Title       string
	Author      string
	Blog        string // title of the feed the post came from
	Link        string
	Body        string // HTML
}

// FeedResult is the outcome of fetching one feed: either posts or an error.
type FeedResult struct {
	Source FeedSource
	Posts  []Post
	Err    error
}

func (r FeedResult) OK() bool {
	return r.Err == nil
}

// MergePosts concatenates the posts of every successful result, keeping
// result order and the order each feed returned its posts in.
func MergePosts(results []FeedResult) []Post {
	var n int
	for _, r := range results {
		if r.OK() {
			n += len(r.Posts)
		}
	}

	merged := make([]Post, 0, n)
	for _, r := range results {
		if r.OK() {
			merged = append(merged, r.Posts...)
		}
	}
	return merged
}

// SortPosts orders posts by publication time, oldest first. Posts published
// at the same instant keep their relative order.
func SortPosts(posts []Post) {
	slices.SortStableFunc(posts, func(a, b Post) int {
		return a.PublishedAt.Compare(b.PublishedAt)
	})
}

// Issue is one e-book worth of posts.
type Issue struct {
	Title string
	Date  time.Time
	Posts []Post
}

// Artifact is a packaged issue on disk. Path is the file to deliver; Files
// lists everything written while producing it, Path included.
type Artifact struct {
	Path  string
	Files []string
}
