// Package waybill orchestrates the generation pipeline: derive shift
// times from the driver's inputs, fill their personal template, flatten
// the form and rasterize the result to a JPEG.
package waybill

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taxidocs/waybill-server/internal/form"
	"github.com/taxidocs/waybill-server/internal/render"
	"github.com/taxidocs/waybill-server/internal/shift"
	"github.com/taxidocs/waybill-server/internal/templates"
)

// GenerateRequest carries the two driver-supplied inputs plus the
// identifier used to locate their template.
type GenerateRequest struct {
	UserID    string
	StartTime string
	Odometer  string
}

// GenerateResult is the finished document image plus bookkeeping about
// the fill.
type GenerateResult struct {
	Image     []byte
	Serial    string
	Filled    int
	Total     int
	Unmatched []string
}

// Service wires the pipeline stages together.
type Service struct {
	templates templates.Resolver
	flattener *render.Flattener
	renderer  *render.Renderer
	pres      form.Presentation
	loc       *time.Location
	dpi       int
	tempDir   string
	now       func() time.Time
	log       *slog.Logger
}

// Options configures a Service beyond its required collaborators.
type Options struct {
	// Presentation controls the font stamped into filled fields.
	Presentation form.Presentation
	// Location is the timezone shift times are derived in.
	Location *time.Location
	// DPI for rasterization; zero selects the renderer default.
	DPI int
	// TempDir holds intermediate PDFs; empty selects the system default.
	TempDir string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewService creates a generation service. resolver is required; the
// flattener and renderer may be degraded (no rasterization backend).
func NewService(resolver templates.Resolver, flattener *render.Flattener, renderer *render.Renderer, opts Options, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Presentation.FontName == "" {
		opts.Presentation = form.DefaultPresentation()
	}
	return &Service{
		templates: resolver,
		flattener: flattener,
		renderer:  renderer,
		pres:      opts.Presentation,
		loc:       opts.Location,
		dpi:       opts.DPI,
		tempDir:   opts.TempDir,
		now:       opts.Now,
		log:       log,
	}
}

// DeriveTimes exposes the time derivation on its own, for callers that
// preview the schedule without producing a document.
func (s *Service) DeriveTimes(startTime string) (shift.FieldValues, error) {
	return shift.Derive(startTime, s.now().In(s.loc))
}

// Generate runs the full pipeline. Input validation happens before any
// file is touched, so a rejected request leaves nothing behind.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if _, _, err := shift.ParseStartTime(req.StartTime); err != nil {
		return nil, err
	}
	if err := shift.ValidateOdometer(req.Odometer); err != nil {
		return nil, err
	}

	templatePath, cleanup, err := s.templates.Resolve(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	values, err := shift.Derive(req.StartTime, s.now().In(s.loc))
	if err != nil {
		return nil, err
	}
	serial := shift.NewSerialNumber()
	// Validation tolerates surrounding whitespace; the stamped value
	// must not carry it.
	values["odometr"] = strings.TrimSpace(req.Odometer)
	values["serial_number"] = serial

	doc, err := form.Load(templatePath)
	if err != nil {
		return nil, &RenderError{Stage: "load", Err: err}
	}
	table, err := form.NewResolver(s.log).Resolve(doc)
	if err != nil {
		return nil, &RenderError{Stage: "resolve", Err: err}
	}

	stats, err := form.NewWriter(s.log).Fill(doc, table, values, s.pres)
	if err != nil {
		return nil, &RenderError{Stage: "fill", Err: err}
	}
	s.log.Info("template filled",
		"user_id", req.UserID,
		"filled", stats.Filled,
		"total", stats.Total,
		"unmatched", len(stats.Unmatched),
	)

	if s.flattener != nil {
		if err := s.flattener.Flatten(doc, s.pres); err != nil {
			return nil, &RenderError{Stage: "flatten", Err: err}
		}
	}

	outPath := filepath.Join(s.outputDir(), fmt.Sprintf("waybill-%s.pdf", uuid.NewString()))
	defer func() {
		if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
			s.log.Warn("failed to remove intermediate pdf", "path", outPath, "error", err)
		}
	}()
	if err := doc.Write(outPath); err != nil {
		return nil, &RenderError{Stage: "write", Err: err}
	}

	img, err := s.renderer.RenderJPEG(ctx, outPath, s.dpi)
	if err != nil {
		if render.IsUnavailable(err) {
			return nil, err
		}
		return nil, &RenderError{Stage: "rasterize", Err: err}
	}

	return &GenerateResult{
		Image:     img,
		Serial:    serial,
		Filled:    stats.Filled,
		Total:     stats.Total,
		Unmatched: stats.Unmatched,
	}, nil
}

func (s *Service) outputDir() string {
	if s.tempDir != "" {
		return s.tempDir
	}
	return os.TempDir()
}
