package tagstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"

	"tunesmith/internal/services"
)

// ID3Store reads tags from any format dhowden/tag understands and writes
// ID3v2 frames.
type ID3Store struct{}

// NewID3Store returns the on-disk tag store.
func NewID3Store() ID3Store { return ID3Store{} }

// ReadTags returns the managed tags of the file at path. A file without any
// tag block yields empty Tags.
func (ID3Store) ReadTags(path string) (Tags, error) {
	file, err := os.Open(path)
	if err != nil {
		return Tags{}, services.Wrap(services.ErrScanRead, "tagstore", "open", path, err)
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return Tags{}, nil
		}
		return Tags{}, services.Wrap(services.ErrScanRead, "tagstore", "read", path, err)
	}

	tags := Tags{
		Title:  optional(meta.Title()),
		Artist: optional(meta.Artist()),
		Album:  optional(meta.Album()),
	}
	raw := meta.Raw()
	for _, key := range []string{"TPUB", "TPB"} {
		if value, ok := raw[key].(string); ok {
			tags.Organization = optional(value)
			break
		}
	}
	return tags, nil
}

// WriteTags writes the supported keys as ID3v2 frames. An empty value
// removes the frame.
func (ID3Store) WriteTags(path string, values map[string]string) error {
	failed := unsupportedKeys(values)

	id3, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return &WriteError{Path: path, Keys: supportedKeys(values), Err: fmt.Errorf("open: %w", err)}
	}
	defer id3.Close()
	id3.SetDefaultEncoding(id3v2.EncodingUTF8)

	for key, value := range values {
		frameID := frameFor(id3, key)
		if frameID == "" {
			continue
		}
		if value == "" {
			id3.DeleteFrames(frameID)
			continue
		}
		id3.AddTextFrame(frameID, id3.DefaultEncoding(), value)
	}
	if err := id3.Save(); err != nil {
		return &WriteError{Path: path, Keys: supportedKeys(values), Err: fmt.Errorf("save: %w", err)}
	}
	if len(failed) > 0 {
		return &WriteError{Path: path, Keys: failed}
	}
	return nil
}

func frameFor(id3 *id3v2.Tag, key string) string {
	switch key {
	case KeyTitle:
		return id3.CommonID("Title")
	case KeyArtist:
		return id3.CommonID("Artist")
	case KeyAlbum:
		return id3.CommonID("Album/Movie/Show title")
	case KeyOrganization:
		return id3.CommonID("Publisher")
	default:
		return ""
	}
}

func supportedKeys(values map[string]string) []string {
	unsupported := make(map[string]struct{})
	for _, key := range unsupportedKeys(values) {
		unsupported[key] = struct{}{}
	}
	var keys []string
	for key := range values {
		if _, skip := unsupported[key]; !skip {
			keys = append(keys, key)
		}
	}
	return keys
}
