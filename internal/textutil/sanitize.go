package textutil

import "strings"

// pathCharStripper removes characters that are illegal in file names on at
// least one supported filesystem.
var pathCharStripper = strings.NewReplacer(
	"/", "",
	"\\", "",
	":", "",
	"*", "",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName strips filesystem-unsafe characters from a path segment
// and trims surrounding whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(pathCharStripper.Replace(name))
}
