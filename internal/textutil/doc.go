// Package textutil provides filename sanitization and lightweight title
// similarity used when matching untracked library files to missing items.
package textutil
