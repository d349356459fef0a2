package rules

import (
	"regexp"
	"strings"

	"tunesmith/internal/catalog"
)

// ArtistTitleName is the registry name of the ArtistTitle rule.
const ArtistTitleName = "ArtistTitle"

var (
	marketingSuffix = regexp.MustCompile(`(?i)\s*[\(\[]\s*(?:official\s+(?:music\s+|lyric\s+)?video|official\s+audio|official|lyric\s+video|lyrics?|audio|visuali[sz]er|hd|hq)\s*[\)\]]`)
	quoteStripper   = strings.NewReplacer(`"`, "", "“", "", "”", "", "„", "", "«", "", "»", "")
	separators      = []string{" - ", " – ", " — ", "|", "-"}
)

// ArtistTitle splits a remote title into artist and title and derives the
// filename from them. With UseRemote it prefers the artist and track fields
// the fetch service reports, falling back to the heuristic split when those
// are absent.
type ArtistTitle struct {
	UseRemote bool
}

// NewArtistTitle builds the rule from {"useRemote": bool}.
func NewArtistTitle(params map[string]any) (Rule, error) {
	useRemote, err := boolParam(params, "useRemote")
	if err != nil {
		return nil, err
	}
	return ArtistTitle{UseRemote: useRemote}, nil
}

func (r ArtistTitle) Name() string { return ArtistTitleName }

func (r ArtistTitle) Params() map[string]any {
	return map[string]any{"useRemote": r.UseRemote}
}

func (r ArtistTitle) Apply(entry catalog.Entry, _ map[string]any) map[string]any {
	var artist, title string
	if r.UseRemote && strings.TrimSpace(entry.SongTitle) != "" {
		artist = cleanPart(entry.SongArtist)
		title = cleanPart(entry.SongTitle)
	} else {
		artist, title = SplitArtistTitle(entry.Title)
	}
	if title == "" {
		return nil
	}
	filename := title
	if artist != "" {
		filename = artist + " - " + title
	}
	return map[string]any{
		"artist":   artist,
		"title":    title,
		"filename": filename,
	}
}

// SplitArtistTitle extracts artist and title from a raw remote title. When no
// separator yields two non-empty halves the whole cleaned string is the title.
func SplitArtistTitle(raw string) (artist, title string) {
	cleaned := cleanPart(marketingSuffix.ReplaceAllString(raw, ""))
	if cleaned == "" {
		return "", ""
	}
	for _, sep := range separators {
		left, right, found := strings.Cut(cleaned, sep)
		if !found {
			continue
		}
		left, right = cleanPart(left), cleanPart(right)
		if left == "" || right == "" {
			break
		}
		return left, right
	}
	return "", cleaned
}

func cleanPart(s string) string {
	s = quoteStripper.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
