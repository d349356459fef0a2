package tagstore

import (
	"fmt"
	"sort"
	"strings"

	"tunesmith/internal/services"
)

// Supported tag keys.
const (
	KeyTitle        = "title"
	KeyArtist       = "artist"
	KeyAlbum        = "album"
	KeyOrganization = "organization"
)

// Store reads and writes persisted tag data.
type Store interface {
	ReadTags(path string) (Tags, error)
	// WriteTags overwrites only the given keys. Unsupported keys fail
	// individually and do not prevent the others from being written.
	WriteTags(path string, values map[string]string) error
}

// Tags holds the managed tag values. A nil field means the tag is absent.
type Tags struct {
	Title        *string
	Artist       *string
	Album        *string
	Organization *string
}

// OrganizationKey splits the organization tag into source and item ids.
func (t Tags) OrganizationKey() (sourceID, itemID string, ok bool) {
	if t.Organization == nil {
		return "", "", false
	}
	return ParseOrganization(*t.Organization)
}

// Organization formats the organization key stored in tags.
func Organization(sourceID, itemID string) string {
	return sourceID + "/" + itemID
}

// ParseOrganization splits "source/item". The source part may be empty.
func ParseOrganization(value string) (sourceID, itemID string, ok bool) {
	idx := strings.LastIndex(value, "/")
	if idx < 0 {
		return "", "", false
	}
	itemID = strings.TrimSpace(value[idx+1:])
	if itemID == "" {
		return "", "", false
	}
	return strings.TrimSpace(value[:idx]), itemID, true
}

// Map renders the present tags as a key/value map.
func (t Tags) Map() map[string]string {
	out := make(map[string]string, 4)
	for key, value := range map[string]*string{
		KeyTitle:        t.Title,
		KeyArtist:       t.Artist,
		KeyAlbum:        t.Album,
		KeyOrganization: t.Organization,
	} {
		if value != nil {
			out[key] = *value
		}
	}
	return out
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// WriteError reports the keys a write could not store.
type WriteError struct {
	Path string
	Keys []string
	Err  error
}

func (e *WriteError) Error() string {
	msg := fmt.Sprintf("write tags %s: failed keys %s", e.Path, strings.Join(e.Keys, ", "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the tag write marker and any underlying cause.
func (e *WriteError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrTagWrite}
	}
	return []error{services.ErrTagWrite, e.Err}
}

func unsupportedKeys(values map[string]string) []string {
	var keys []string
	for key := range values {
		switch key {
		case KeyTitle, KeyArtist, KeyAlbum, KeyOrganization:
		default:
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
