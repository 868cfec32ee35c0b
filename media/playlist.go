package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Jiadezhende/CleanSightBackend/errors"
)

const playlistHeader = "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:%d\n#EXT-X-MEDIA-SEQUENCE:0\n"

// Playlist appends segment entries to a rolling m3u8 file. The header is
// written once, on the first append to a file that does not yet exist.
type Playlist struct {
	mu             sync.Mutex
	path           string
	targetDuration int
}

// NewPlaylist creates a playlist writer for the given file path.
// targetDuration is the advertised maximum segment duration in seconds.
func NewPlaylist(path string, targetDuration int) *Playlist {
	if targetDuration <= 0 {
		targetDuration = 10
	}
	return &Playlist{path: path, targetDuration: targetDuration}
}

// Path returns the playlist file path.
func (p *Playlist) Path() string { return p.path }

// Append adds one segment entry. duration is the nominal segment length in
// seconds; name is the segment file name relative to the playlist.
func (p *Playlist) Append(name string, duration float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return errors.WrapTransient(errors.ErrPlaylistWrite, "Playlist", "Append", p.path)
	}

	_, statErr := os.Stat(p.path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.WrapTransient(errors.ErrPlaylistWrite, "Playlist", "Append", p.path)
	}
	defer f.Close()

	if fresh {
		if _, err := fmt.Fprintf(f, playlistHeader, p.targetDuration); err != nil {
			return errors.WrapTransient(errors.ErrPlaylistWrite, "Playlist", "Append", p.path)
		}
	}
	if _, err := fmt.Fprintf(f, "#EXTINF:%.3f,\n%s\n", duration, name); err != nil {
		return errors.WrapTransient(errors.ErrPlaylistWrite, "Playlist", "Append", p.path)
	}
	return nil
}
