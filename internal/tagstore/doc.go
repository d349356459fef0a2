// Package tagstore reads and writes the small set of audio tags tunesmith
// manages: title, artist, album, and the organization key that maps a library
// file back to its source and item.
//
// ID3Store reads with github.com/dhowden/tag and writes ID3v2 frames with
// github.com/bogem/id3v2. Memory is an in-process store for tests and dry runs.
package tagstore
