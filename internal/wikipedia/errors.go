package wikipedia

import "errors"

var (
	// ErrNoResult is returned when a search finds no article
	ErrNoResult = errors.New("no wikipedia article found")

	// ErrNoImage is returned when an article has no lead image
	ErrNoImage = errors.New("wikipedia article has no image")

	// ErrImageTooSmall is returned when a downloaded image body is implausibly small
	ErrImageTooSmall = errors.New("downloaded image is too small")
)
