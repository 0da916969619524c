package metadata

import (
	"path/filepath"
	"strings"
)

var fileNameReplacer = strings.NewReplacer("/", "-", "\\", "-", "!", "", "?", "", ":", "-", ",", "", "*", "-", "|", "-", "\"", "", ">", "", "<", "")

// FileNameCleaner return a safe file name from a given title
func FileNameCleaner(s string) string {
	return strings.TrimSpace(fileNameReplacer.Replace(s))
}

// MediaPath gives the output file name for the presentation, placed in dir.
// The title is used when present, else fallback.
func (m *MediaInfo) MediaPath(dir, fallback string) string {
	name := FileNameCleaner(m.Title)
	if name == "" {
		name = FileNameCleaner(fallback)
	}
	if name == "" {
		name = "presentation"
	}
	return filepath.Join(dir, name+".mp4")
}
