package thumbs

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	execute "github.com/alexellis/go-execute/v2"
	"github.com/spf13/afero"

	"github.com/beamhq/beam/pkg/files"
	"github.com/beamhq/beam/pkg/logging"
)

// Generator produces thumbnail and preview artifacts for stored files.
type Generator struct {
	fs        afero.Fs
	ffmpeg    string
	uploadDir string
	thumbDir  string
	cfg       Config
	logger    *logging.Logger
}

// NewGenerator returns a generator reading sources from uploadDir and
// writing artifacts to thumbDir using the given ffmpeg binary.
func NewGenerator(fs afero.Fs, ffmpeg, uploadDir, thumbDir string, cfg Config, logger *logging.Logger) *Generator {
	return &Generator{
		fs:        fs,
		ffmpeg:    ffmpeg,
		uploadDir: uploadDir,
		thumbDir:  thumbDir,
		cfg:       cfg,
		logger:    logger,
	}
}

// ThumbnailPath is the deterministic thumbnail location for a stored name.
func (g *Generator) ThumbnailPath(storedName string) string {
	return filepath.Join(g.thumbDir, files.BaseName(storedName)+"_thumb.webp")
}

// PreviewPath is the deterministic preview location for a stored name.
// Videos get a webm clip, audio an mp3 clip; images have no preview.
func (g *Generator) PreviewPath(storedName string, category Category) string {
	base := files.BaseName(storedName)
	switch category {
	case CategoryVideo:
		return filepath.Join(g.thumbDir, base+"_preview.webm")
	case CategoryAudio:
		return filepath.Join(g.thumbDir, base+"_preview.mp3")
	default:
		return ""
	}
}

// Generate dispatches to the category-specific generator and returns the
// metadata to record on the file. Unsupported types and missing sources fail
// with descriptive errors; the job record carries them verbatim.
func (g *Generator) Generate(ctx context.Context, storedName, mimeType string) (files.Metadata, error) {
	category, ok := CategoryFor(mimeType)
	if !ok {
		return files.Metadata{}, fmt.Errorf("unsupported media type %q", mimeType)
	}

	src := filepath.Join(g.uploadDir, storedName)
	exists, err := afero.Exists(g.fs, src)
	if err != nil {
		return files.Metadata{}, fmt.Errorf("failed to check source %s: %w", src, err)
	}
	if !exists {
		return files.Metadata{}, fmt.Errorf("source file %s does not exist", src)
	}

	if err := g.fs.MkdirAll(g.thumbDir, 0o755); err != nil {
		return files.Metadata{}, fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	thumbPath := g.ThumbnailPath(storedName)
	previewPath := g.PreviewPath(storedName, category)

	switch category {
	case CategoryImage:
		err = g.run(ctx, g.imageThumbArgs(src, thumbPath))
	case CategoryVideo:
		if err = g.run(ctx, g.videoThumbArgs(src, thumbPath)); err == nil {
			err = g.run(ctx, g.videoPreviewArgs(src, previewPath))
		}
	case CategoryAudio:
		if err = g.run(ctx, g.audioThumbArgs(src, thumbPath)); err == nil {
			err = g.run(ctx, g.audioPreviewArgs(src, previewPath))
		}
	}
	if err != nil {
		return files.Metadata{}, err
	}

	return files.Metadata{
		Thumbnail: thumbPath,
		Preview:   previewPath,
		MediaType: string(category),
	}, nil
}

func (g *Generator) imageThumbArgs(src, dst string) []string {
	c := g.cfg
	scale := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		c.ThumbWidth, c.ThumbHeight, c.ThumbWidth, c.ThumbHeight)
	return []string{
		"-i", src,
		"-vf", scale,
		"-frames:v", "1",
		"-f", "webp",
		"-quality", strconv.Itoa(c.ThumbQuality),
		"-y", dst,
	}
}

func (g *Generator) videoThumbArgs(src, dst string) []string {
	c := g.cfg
	scale := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d",
		c.ThumbWidth, c.ThumbHeight, c.ThumbWidth, c.ThumbHeight)
	return []string{
		"-i", src,
		"-ss", "00:00:01",
		"-vframes", "1",
		"-f", "webp",
		"-vf", scale,
		"-quality", strconv.Itoa(c.ThumbQuality),
		"-y", dst,
	}
}

func (g *Generator) videoPreviewArgs(src, dst string) []string {
	c := g.cfg
	return []string{
		"-i", src,
		"-t", strconv.Itoa(c.PreviewSeconds),
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", c.PreviewWidth, c.PreviewHeight),
		"-an",
		"-f", "webm",
		"-y", dst,
	}
}

func (g *Generator) audioThumbArgs(src, dst string) []string {
	c := g.cfg
	return []string{
		"-i", src,
		"-filter_complex", fmt.Sprintf("showwavespic=s=%dx%d", c.ThumbWidth, c.ThumbHeight),
		"-frames:v", "1",
		"-f", "webp",
		"-y", dst,
	}
}

func (g *Generator) audioPreviewArgs(src, dst string) []string {
	c := g.cfg
	return []string{
		"-i", src,
		"-t", strconv.Itoa(c.PreviewSeconds * 2),
		"-codec:a", "libmp3lame",
		"-f", "mp3",
		"-y", dst,
	}
}

// run executes ffmpeg, surfacing the tail of stderr on failure. ffmpeg's
// diagnostics live on stderr, so that is what identifies a decode error or
// unsupported codec.
func (g *Generator) run(ctx context.Context, args []string) error {
	g.logger.Debug("executing", "command", g.ffmpeg, "args", args)

	task := execute.ExecTask{
		Command: g.ffmpeg,
		Args:    args,
	}
	res, err := task.Execute(ctx)
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", g.ffmpeg, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s exited with code %d: %s", g.ffmpeg, res.ExitCode, tail(res.Stderr, 400))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
