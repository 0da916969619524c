package metadata

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// Movie holds the NFO record of a downloaded presentation
type Movie struct {
	XMLName xml.Name `xml:"movie"`
	MediaInfo
}

// NFOPath gives the path of the NFO sidecar of the media file
func NFOPath(mediaPath string) string {
	return strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + ".nfo"
}

// WriteNFO writes the NFO file at expected place, atomically.
func (m *MediaInfo) WriteNFO(destination string) error {
	err := os.MkdirAll(filepath.Dir(destination), 0o777)
	if err != nil {
		return fmt.Errorf("can't create %s: %w", destination, err)
	}

	pending, err := renameio.NewPendingFile(destination)
	if err != nil {
		return fmt.Errorf("can't create %s: %w", destination, err)
	}
	defer pending.Cleanup()

	if _, err = pending.WriteString(xml.Header); err != nil {
		return fmt.Errorf("can't write %s: %w", destination, err)
	}
	enc := xml.NewEncoder(pending)
	enc.Indent("", "  ")
	if err = enc.Encode(Movie{MediaInfo: *m}); err != nil {
		return fmt.Errorf("can't encode %s: %w", destination, err)
	}
	if err = pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("can't write %s: %w", destination, err)
	}
	return nil
}

// ReadNFO reads back a NFO file
func ReadNFO(path string) (*MediaInfo, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Movie
	if err := xml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("can't decode %s: %w", path, err)
	}
	return &m.MediaInfo, nil
}
