package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"tunesmith/internal/fetch"
	"tunesmith/internal/library"
	"tunesmith/internal/queue"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 18
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	if colorize {
		return ansiBlue + line + ansiReset
	}
	return line
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func checkKind(passed bool) statusKind {
	if passed {
		return statusOK
	}
	return statusError
}

func jobStatusKind(status queue.Status) statusKind {
	switch status {
	case fetch.StatusFailed:
		return statusWarn
	case fetch.StatusSucceeded:
		return statusOK
	default:
		return statusInfo
	}
}

// collectionStatusLine summarizes a declared collection file without
// touching the library.
func collectionStatusLine(path string, colorize bool) string {
	label := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if _, err := os.Stat(path); err != nil {
		return renderStatusLine(label, statusError, "Not readable", colorize)
	}
	declared, err := library.LoadDeclared(path)
	if err != nil {
		return renderStatusLine(label, statusError, "Invalid collection file", colorize)
	}
	kind := statusOK
	if len(declared.Sources) == 0 {
		kind = statusWarn
	}
	return renderStatusLine(label, kind,
		fmt.Sprintf("%q: %d sources, %d items, %d ignored", declared.Name, len(declared.Sources), len(declared.Items), len(declared.Ignored)), colorize)
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
