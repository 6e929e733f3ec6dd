package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// ErrUnavailable reports that no rasterization backend could be resolved.
// Rendering cannot degrade gracefully, so callers surface this as a hard
// failure; flattening merely skips itself.
var ErrUnavailable = errors.New("rasterization backend unavailable")

// IsUnavailable reports whether err stems from an absent rasterization
// backend.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Rasterizer renders every page of a PDF at the given DPI. Implementations
// must be safe for concurrent use by independent requests.
type Rasterizer interface {
	RenderPages(ctx context.Context, pdfPath string, dpi int) ([]image.Image, error)
}

// ToolRasterizer shells out to an installed PDF renderer. mutool and
// pdftoppm are probed in that order.
type ToolRasterizer struct {
	tool string
	log  *slog.Logger
}

// DetectRasterizer probes the host for a usable rendering tool. It is
// resolved once at startup; callers branch on its presence rather than
// retrying per request.
func DetectRasterizer(log *slog.Logger) (*ToolRasterizer, error) {
	if log == nil {
		log = slog.Default()
	}
	for _, tool := range []string{"mutool", "pdftoppm"} {
		if _, err := exec.LookPath(tool); err == nil {
			log.Info("rasterization backend resolved", "tool", tool)
			return &ToolRasterizer{tool: tool, log: log}, nil
		}
	}
	return nil, ErrUnavailable
}

// RenderPages rasterizes the document into one image per page. Page files
// are written to a request-scoped temporary directory and removed before
// returning.
func (r *ToolRasterizer) RenderPages(ctx context.Context, pdfPath string, dpi int) ([]image.Image, error) {
	outDir, err := os.MkdirTemp("", "waybill-raster-")
	if err != nil {
		return nil, fmt.Errorf("failed to create raster workdir: %w", err)
	}
	defer os.RemoveAll(outDir)

	var cmd *exec.Cmd
	switch r.tool {
	case "mutool":
		pattern := filepath.Join(outDir, "page-%04d.png")
		cmd = exec.CommandContext(ctx, "mutool", "draw", "-r", fmt.Sprintf("%d", dpi), "-o", pattern, pdfPath)
	case "pdftoppm":
		prefix := filepath.Join(outDir, "page")
		cmd = exec.CommandContext(ctx, "pdftoppm", "-png", "-r", fmt.Sprintf("%d", dpi), pdfPath, prefix)
	default:
		return nil, ErrUnavailable
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", r.tool, err, string(out))
	}

	files, err := filepath.Glob(filepath.Join(outDir, "page*.png"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s produced no page images", r.tool)
	}
	sort.Strings(files)

	images := make([]image.Image, 0, len(files))
	for _, file := range files {
		img, err := decodePNG(file)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(file), err)
		}
		images = append(images, img)
	}
	return images, nil
}

func decodePNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}
