package rules

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tunesmith/internal/catalog"
)

// TitleCaseName is the registry name of the TitleCase rule.
const TitleCaseName = "TitleCase"

// TitleCase rewrites the named string settings in title case.
type TitleCase struct {
	Fields []string
	Lang   language.Tag
}

// NewTitleCase builds the rule from {"fields": [...], "language": "en"}.
// Fields default to title, artist, and album.
func NewTitleCase(params map[string]any) (Rule, error) {
	fields, err := stringsParam(params, "fields")
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		fields = []string{"title", "artist", "album"}
	}
	lang := language.English
	if raw, ok := params["language"].(string); ok && raw != "" {
		tag, err := language.Parse(raw)
		if err != nil {
			return nil, err
		}
		lang = tag
	}
	return TitleCase{Fields: fields, Lang: lang}, nil
}

func (r TitleCase) Name() string { return TitleCaseName }

func (r TitleCase) Params() map[string]any {
	fields := make([]any, 0, len(r.Fields))
	for _, f := range r.Fields {
		fields = append(fields, f)
	}
	return map[string]any{"fields": fields, "language": r.Lang.String()}
}

func (r TitleCase) Apply(_ catalog.Entry, current map[string]any) map[string]any {
	caser := cases.Title(r.Lang, cases.NoLower)
	update := make(map[string]any)
	for _, field := range r.Fields {
		value, ok := current[field].(string)
		if !ok || value == "" {
			continue
		}
		if cased := caser.String(value); cased != value {
			update[field] = cased
		}
	}
	return update
}
