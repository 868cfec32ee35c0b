package media

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Jiadezhende/CleanSightBackend/errors"
)

const defaultBinary = "ffmpeg"

// FFmpegEncoder encodes JPEG frames by piping them into an ffmpeg child
// process producing an H.264 MP4 at the nominal rate. One process per
// segment; the process lives only for the duration of an Encode call.
type FFmpegEncoder struct {
	// Binary is the ffmpeg executable. Empty means "ffmpeg" on PATH.
	Binary string

	// ExtraArgs are appended before the output path, for deployments that
	// need codec or bitrate overrides.
	ExtraArgs []string

	Logger *slog.Logger
}

// NewFFmpegEncoder creates an encoder using the ffmpeg binary on PATH.
func NewFFmpegEncoder(logger *slog.Logger) *FFmpegEncoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegEncoder{Logger: logger.With("component", "ffmpeg")}
}

func (e *FFmpegEncoder) args(path string, fps int) []string {
	out := []string{
		"-y",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-r", strconv.Itoa(fps),
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
	}
	out = append(out, e.ExtraArgs...)
	return append(out, path)
}

// Encode writes the frames to path as MP4. The context bounds the whole
// encode; cancellation kills the child process.
func (e *FFmpegEncoder) Encode(ctx context.Context, path string, frames [][]byte, fps int) error {
	if len(frames) == 0 {
		return errors.WrapInvalid(errors.ErrEmptyFrame, "FFmpegEncoder", "Encode", "no frames")
	}
	if fps <= 0 {
		fps = 30
	}

	binary := e.Binary
	if binary == "" {
		binary = defaultBinary
	}

	cmd := exec.CommandContext(ctx, binary, e.args(path, fps)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.WrapFatal(err, "FFmpegEncoder", "Encode", "open stdin pipe")
	}

	if err := cmd.Start(); err != nil {
		return errors.WrapTransient(errors.ErrEncodeFailed, "FFmpegEncoder", "Encode",
			"start "+binary+": "+err.Error())
	}

	w := bufio.NewWriterSize(stdin, 1<<20)
	writeErr := func() error {
		for _, f := range frames {
			if _, err := w.Write(f); err != nil {
				return err
			}
		}
		return w.Flush()
	}()
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		e.Logger.Error("encode failed",
			"path", path,
			"frames", len(frames),
			"error", err,
			"stderr", tail(stderr.String(), 512))
		return errors.WrapTransient(errors.ErrEncodeFailed, "FFmpegEncoder", "Encode", path)
	}
	if writeErr != nil {
		return errors.WrapTransient(errors.ErrEncodeFailed, "FFmpegEncoder", "Encode",
			"write frames: "+writeErr.Error())
	}

	e.Logger.Debug("segment encoded", "path", path, "frames", len(frames), "fps", fps)
	return nil
}

// tail returns the last n bytes of s, whole lines preferred.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[len(s)-n:]
	if i := strings.IndexByte(s, '\n'); i >= 0 && i < len(s)-1 {
		return s[i+1:]
	}
	return s
}
