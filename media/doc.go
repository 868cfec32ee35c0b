// Package media produces the video artifacts of segment flushing: an
// Encoder turns a run of JPEG frames into an MP4 file, and Playlist keeps
// the rolling m3u8 playlists those segments are appended to. The stock
// encoder drives an ffmpeg child process; tests substitute a fake.
package media
