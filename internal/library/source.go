package library

import (
	"tunesmith/internal/rules"
	"tunesmith/internal/settings"
)

// Source is one remote playlist feeding items into a collection.
type Source struct {
	ID    string
	Title string
	Rules []rules.Rule

	settings *settings.Layer
}

func newSource(id, title, folder string, template *settings.Layer, list []rules.Rule) *Source {
	layer := template.Derive(true)
	if folder != "" {
		layer.Set(KeyFolder, folder)
	}
	return &Source{ID: id, Title: title, Rules: list, settings: layer}
}

// Settings seeds every item created from the source.
func (s *Source) Settings() *settings.Layer { return s.settings }

// Folder is the library subdirectory the source's items are filed under.
func (s *Source) Folder() string {
	return s.settings.String(KeyFolder)
}
