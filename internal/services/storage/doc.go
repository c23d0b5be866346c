// Package storage writes uploaded decks, thumbnails and rendered videos to
// durable object storage and returns the URL clients use to fetch them.
package storage
