package waybill

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxidocs/waybill-server/internal/form"
	"github.com/taxidocs/waybill-server/internal/pdftest"
	"github.com/taxidocs/waybill-server/internal/render"
	"github.com/taxidocs/waybill-server/internal/shift"
	"github.com/taxidocs/waybill-server/internal/templates"
)

type stubRasterizer struct {
	calls int
}

func (s *stubRasterizer) RenderPages(_ context.Context, pdfPath string, _ int) ([]image.Image, error) {
	s.calls++
	if _, err := os.Stat(pdfPath); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, 40, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.White)
		}
	}
	return []image.Image{img}, nil
}

func testTemplateDir(t *testing.T, userID string) string {
	t.Helper()
	dir := t.TempDir()
	data := pdftest.SinglePageForm(
		pdftest.Widget{Name: "start_date"},
		pdftest.Widget{Name: "start_time"},
		pdftest.Widget{Name: "end_time"},
		pdftest.Widget{Name: "odometr"},
		pdftest.Widget{Name: "serial_number"},
	)
	path := filepath.Join(dir, "driver_"+userID+".pdf")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return dir
}

func testService(t *testing.T, dir string, ras render.Rasterizer) *Service {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	available := ras != nil
	return NewService(
		templates.NewDirResolver(dir),
		render.NewFlattener(available, nil),
		render.NewRenderer(ras, nil),
		Options{
			Location: loc,
			TempDir:  t.TempDir(),
			Now: func() time.Time {
				return time.Date(2024, 3, 15, 12, 0, 0, 0, loc)
			},
		},
		nil,
	)
}

func TestGenerate(t *testing.T) {
	dir := testTemplateDir(t, "12345")
	svc := testService(t, dir, &stubRasterizer{})

	res, err := svc.Generate(context.Background(), GenerateRequest{
		UserID:    "12345",
		StartTime: "08:00",
		Odometer:  "54321",
	})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Filled)
	assert.Equal(t, 5, res.Total)
	assert.Empty(t, res.Unmatched)
	assert.Regexp(t, regexp.MustCompile(`^\d{6} - \d{7}$`), res.Serial)

	// JPEG start-of-image marker.
	require.GreaterOrEqual(t, len(res.Image), 2)
	assert.Equal(t, byte(0xFF), res.Image[0])
	assert.Equal(t, byte(0xD8), res.Image[1])
}

// capturingRasterizer snapshots the intermediate PDF before the
// service removes it, so tests can inspect the written field values.
type capturingRasterizer struct {
	stubRasterizer
	pdf []byte
}

func (c *capturingRasterizer) RenderPages(ctx context.Context, pdfPath string, dpi int) ([]image.Image, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, err
	}
	c.pdf = data
	return c.stubRasterizer.RenderPages(ctx, pdfPath, dpi)
}

func TestGenerate_TrimsOdometer(t *testing.T) {
	dir := testTemplateDir(t, "12345")
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	ras := &capturingRasterizer{}
	// Flattening disabled so the field values survive into the output.
	svc := NewService(
		templates.NewDirResolver(dir),
		render.NewFlattener(false, nil),
		render.NewRenderer(ras, nil),
		Options{Location: loc, TempDir: t.TempDir()},
		nil,
	)

	_, err = svc.Generate(context.Background(), GenerateRequest{
		UserID:    "12345",
		StartTime: "08:00",
		Odometer:  " 54321 ",
	})
	require.NoError(t, err)
	require.NotEmpty(t, ras.pdf)

	doc, err := form.LoadBytes(ras.pdf)
	require.NoError(t, err)
	table, err := form.NewResolver(nil).Resolve(doc)
	require.NoError(t, err)

	ref, ok := table.Lookup("odometr")
	require.True(t, ok)
	obj, found := ref.Dict.Find("V")
	require.True(t, found)
	lit, ok := obj.(types.StringLiteral)
	require.True(t, ok)
	assert.Equal(t, "54321", lit.Value())
}

func TestGenerate_InvalidTimeLeavesNoTrace(t *testing.T) {
	dir := testTemplateDir(t, "12345")
	out := t.TempDir()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	svc := NewService(
		templates.NewDirResolver(dir),
		render.NewFlattener(true, nil),
		render.NewRenderer(&stubRasterizer{}, nil),
		Options{Location: loc, TempDir: out},
		nil,
	)

	_, err = svc.Generate(context.Background(), GenerateRequest{
		UserID:    "12345",
		StartTime: "25:61",
		Odometer:  "54321",
	})

	var formatErr *shift.FormatError
	require.ErrorAs(t, err, &formatErr)

	entries, readErr := os.ReadDir(out)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "rejected input must not produce intermediate files")
}

func TestGenerate_InvalidOdometer(t *testing.T) {
	svc := testService(t, testTemplateDir(t, "12345"), &stubRasterizer{})

	_, err := svc.Generate(context.Background(), GenerateRequest{
		UserID:    "12345",
		StartTime: "08:00",
		Odometer:  "12a45",
	})

	var formatErr *shift.FormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestGenerate_MissingTemplate(t *testing.T) {
	svc := testService(t, t.TempDir(), &stubRasterizer{})

	_, err := svc.Generate(context.Background(), GenerateRequest{
		UserID:    "99999",
		StartTime: "08:00",
		Odometer:  "54321",
	})

	assert.ErrorIs(t, err, templates.ErrTemplateMissing)
}

func TestGenerate_NoRasterizer(t *testing.T) {
	svc := testService(t, testTemplateDir(t, "12345"), nil)

	_, err := svc.Generate(context.Background(), GenerateRequest{
		UserID:    "12345",
		StartTime: "08:00",
		Odometer:  "54321",
	})

	assert.ErrorIs(t, err, render.ErrUnavailable)
}

func TestGenerate_RemovesIntermediatePDF(t *testing.T) {
	out := t.TempDir()
	dir := testTemplateDir(t, "12345")
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	svc := NewService(
		templates.NewDirResolver(dir),
		render.NewFlattener(true, nil),
		render.NewRenderer(&stubRasterizer{}, nil),
		Options{Location: loc, TempDir: out},
		nil,
	)

	_, err = svc.Generate(context.Background(), GenerateRequest{
		UserID:    "12345",
		StartTime: "08:00",
		Odometer:  "54321",
	})
	require.NoError(t, err)

	entries, readErr := os.ReadDir(out)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestDeriveTimes(t *testing.T) {
	svc := testService(t, t.TempDir(), &stubRasterizer{})

	values, err := svc.DeriveTimes("08:00")
	require.NoError(t, err)

	assert.Equal(t, "08:00", values["start_time"])
	assert.Equal(t, "08:05", values["med_time"])
	assert.Equal(t, "08:15", values["tech_time"])
	assert.Equal(t, "08:21", values["departure_time"])
	assert.Equal(t, "17:00", values["end_time"])
	assert.Equal(t, "15.03.2024", values["start_date"])
}
