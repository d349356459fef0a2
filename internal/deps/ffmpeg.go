package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// CheckFFmpeg reports the ffmpeg binary the downloader will use for audio
// extraction.
//
// An explicitly configured ffmpeg wins. Otherwise the downloader looks for an
// ffmpeg sitting next to its own executable before falling back to PATH, and
// this helper follows the same order.
func CheckFFmpeg(configured, downloader string) Status {
	result := Status{
		Name:        "FFmpeg",
		Description: "Used by the downloader to extract audio",
	}

	if configured = strings.TrimSpace(configured); configured != "" && configured != "ffmpeg" {
		return check(Requirement{Name: result.Name, Command: configured, Description: result.Description})
	}

	if downloader = strings.TrimSpace(downloader); downloader != "" {
		if resolved, err := exec.LookPath(downloader); err == nil {
			candidate := filepath.Join(filepath.Dir(resolved), executableName("ffmpeg"))
			if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
				result.Command = candidate
				result.Available = true
				return result
			}
		}
	}

	if ffmpegPath, err := exec.LookPath("ffmpeg"); err == nil {
		result.Command = ffmpegPath
		result.Available = true
		return result
	}
	result.Command = "ffmpeg"
	result.Detail = fmt.Sprintf("binary %q not found", "ffmpeg")
	return result
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
