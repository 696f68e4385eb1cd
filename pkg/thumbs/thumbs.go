// Package thumbs generates thumbnail and preview artifacts for stored files
// by driving ffmpeg. Output paths are deterministic functions of the stored
// name, so re-running a generator overwrites its previous output instead of
// accumulating duplicates.
package thumbs

import (
	"strings"
)

// Category is the media family a MIME type belongs to. It selects the
// generator used for thumbnail and preview creation.
type Category string

const (
	CategoryImage Category = "image"
	CategoryVideo Category = "video"
	CategoryAudio Category = "audio"
)

var supportedImageTypes = []string{
	"image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp",
	"image/tiff", "image/bmp", "image/svg+xml",
}

var supportedVideoTypes = []string{
	"video/mp4", "video/webm", "video/avi", "video/mov", "video/mkv",
	"video/flv", "video/wmv", "video/m4v", "video/3gp", "video/quicktime",
}

var supportedAudioTypes = []string{
	"audio/mp3", "audio/mpeg", "audio/wav", "audio/flac", "audio/aac",
	"audio/ogg", "audio/m4a", "audio/wma", "audio/opus",
}

// CategoryFor maps a MIME type to its media category. The second return is
// false for types no generator supports.
func CategoryFor(mimeType string) (Category, bool) {
	// mimetype.Detect can append parameters ("; charset=...")
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	mimeType = strings.ToLower(mimeType)

	for _, t := range supportedImageTypes {
		if t == mimeType {
			return CategoryImage, true
		}
	}
	for _, t := range supportedVideoTypes {
		if t == mimeType {
			return CategoryVideo, true
		}
	}
	for _, t := range supportedAudioTypes {
		if t == mimeType {
			return CategoryAudio, true
		}
	}
	return "", false
}

// IsSupported reports whether thumbnail generation exists for the MIME type.
func IsSupported(mimeType string) bool {
	_, ok := CategoryFor(mimeType)
	return ok
}

// Config holds the output geometry for generated artifacts.
type Config struct {
	ThumbWidth     int
	ThumbHeight    int
	ThumbQuality   int
	PreviewWidth   int
	PreviewHeight  int
	PreviewSeconds int
}

// DefaultConfig mirrors the service's published thumbnail geometry: 300x300
// webp thumbnails and 640x360 previews a few seconds long.
var DefaultConfig = Config{
	ThumbWidth:     300,
	ThumbHeight:    300,
	ThumbQuality:   50,
	PreviewWidth:   640,
	PreviewHeight:  360,
	PreviewSeconds: 4,
}
