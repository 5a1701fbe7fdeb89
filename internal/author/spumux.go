package author

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	dvderrors "github.com/dvdmaker/dvdmaker/internal/errors"
	logger "github.com/dvdmaker/dvdmaker/internal/logging"
)

const spumuxTimeout = 5 * time.Minute

// ButtonConfig describes a single menu button overlay.
type ButtonConfig struct {
	Name    string
	Text    string
	X, Y    int // center position on screen
	Width   int
	Height  int
	Command string
	Color   string // text color, hex "#RRGGBB"
}

// DefaultButton is the play button shown on the VMGM menu.
func DefaultButton() ButtonConfig {
	return ButtonConfig{
		Name:    "button01",
		Text:    "PLAY",
		X:       360,
		Y:       400,
		Width:   120,
		Height:  40,
		Command: cmdPlayTitle,
		Color:   "#FFFFFF",
	}
}

// X0 returns the left edge of the button on screen.
func (b ButtonConfig) X0() int { return b.X - b.Width/2 }

// Y0 returns the top edge of the button on screen.
func (b ButtonConfig) Y0() int { return b.Y - b.Height/2 }

// X1 returns the right edge of the button on screen.
func (b ButtonConfig) X1() int { return b.X + b.Width/2 }

// Y1 returns the bottom edge of the button on screen.
func (b ButtonConfig) Y1() int { return b.Y + b.Height/2 }

// spumux control file structure.
type spumuxDoc struct {
	XMLName xml.Name     `xml:"subpictures"`
	Stream  spumuxStream `xml:"stream"`
}

type spumuxStream struct {
	SPU spumuxSPU `xml:"spu"`
}

type spumuxSPU struct {
	Start     string         `xml:"start,attr"`
	End       string         `xml:"end,attr"`
	Highlight string         `xml:"highlight,attr"`
	Select    string         `xml:"select,attr"`
	Force     string         `xml:"force,attr"`
	XOffset   string         `xml:"xoffset,attr"`
	YOffset   string         `xml:"yoffset,attr"`
	Buttons   []spumuxButton `xml:"button"`
}

type spumuxButton struct {
	Name string `xml:"name,attr"`
	X0   int    `xml:"x0,attr"`
	Y0   int    `xml:"y0,attr"`
	X1   int    `xml:"x1,attr"`
	Y1   int    `xml:"y1,attr"`
}

// Spumux embeds button subpicture overlays into DVD menu videos.
// spumux ships with dvdauthor but is resolved separately because some
// packages split it out; a missing spumux only costs the overlay.
type Spumux struct {
	log    logger.Logger
	button ButtonConfig

	// lookPath and run are substituted by tests.
	lookPath func(file string) (string, error)
	run      func(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, args ...string) (string, error)
}

// NewSpumux creates a spumux wrapper with the default play button.
func NewSpumux(log logger.Logger) *Spumux {
	return &Spumux{
		log:      log,
		button:   DefaultButton(),
		lookPath: exec.LookPath,
		run:      runStreaming,
	}
}

// runStreaming executes a command with redirected stdin and stdout,
// returning captured stderr.
func runStreaming(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// IsAvailable reports whether the spumux binary can be found.
func (s *Spumux) IsAvailable() bool {
	if _, err := s.lookPath("spumux"); err != nil {
		s.log.Debugf("spumux not available: %v", err)
		return false
	}
	return true
}

// AddButtonOverlay renders the button graphic, generates the spumux
// control file and pipes the menu video through spumux, replacing the
// original with the button-enabled version on success.
func (s *Spumux) AddButtonOverlay(ctx context.Context, menuVideo, outputDir string) error {
	spumuxPath, err := s.lookPath("spumux")
	if err != nil {
		return fmt.Errorf("%w: %v", dvderrors.ErrSpumuxUnavailable, err)
	}

	graphicFile, err := s.createButtonGraphic(filepath.Join(outputDir, "temp_buttons"))
	if err != nil {
		return err
	}
	xmlFile, err := s.writeSpumuxXML(graphicFile, outputDir)
	if err != nil {
		return err
	}
	return s.execute(ctx, spumuxPath, xmlFile, menuVideo, outputDir)
}

// createButtonGraphic draws the button text centered on a transparent
// PNG sized to the button.
func (s *Spumux) createButtonGraphic(outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create button directory: %w", err)
	}
	graphicFile := filepath.Join(outputDir, s.button.Name+".png")

	img := image.NewRGBA(image.Rect(0, 0, s.button.Width, s.button.Height))

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, s.button.Text).Ceil()
	textHeight := face.Metrics().Ascent.Ceil() + face.Metrics().Descent.Ceil()

	drawer := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(parseHexColor(s.button.Color)),
		Face: face,
		Dot: fixed.P(
			(s.button.Width-textWidth)/2,
			(s.button.Height-textHeight)/2+face.Metrics().Ascent.Ceil(),
		),
	}
	drawer.DrawString(s.button.Text)

	out, err := os.Create(graphicFile)
	if err != nil {
		return "", fmt.Errorf("failed to create button graphic: %w", err)
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to encode button graphic: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to write button graphic: %w", err)
	}

	s.log.Debugf("Created button graphic: %s (%dx%d, text=%q)",
		filepath.Base(graphicFile), s.button.Width, s.button.Height, s.button.Text)
	return graphicFile, nil
}

// parseHexColor converts "#RRGGBB" to an opaque color, defaulting to
// white on malformed input.
func parseHexColor(hex string) color.RGBA {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	value, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	return color.RGBA{
		R: uint8(value >> 16),
		G: uint8(value >> 8),
		B: uint8(value),
		A: 255,
	}
}

// writeSpumuxXML writes the spumux control file. Button coordinates in
// the control file are relative to the graphic; the xoffset/yoffset
// attributes place it on screen.
func (s *Spumux) writeSpumuxXML(graphicFile, outputDir string) (string, error) {
	doc := spumuxDoc{
		Stream: spumuxStream{
			SPU: spumuxSPU{
				Start:     "00:00:00.00",
				End:       "00:00:30.00",
				Highlight: graphicFile,
				Select:    graphicFile,
				Force:     "yes",
				XOffset:   strconv.Itoa(s.button.X0()),
				YOffset:   strconv.Itoa(s.button.Y0()),
				Buttons: []spumuxButton{{
					Name: s.button.Name,
					X0:   0,
					Y0:   0,
					X1:   s.button.Width,
					Y1:   s.button.Height,
				}},
			},
		},
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode spumux XML: %w", err)
	}
	data = append([]byte(xml.Header), data...)
	data = append(data, '\n')

	xmlFile := filepath.Join(outputDir, "spumux_config.xml")
	if err := os.WriteFile(xmlFile, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write spumux XML: %w", err)
	}
	s.log.Debugf("Generated spumux XML: %s", filepath.Base(xmlFile))
	return xmlFile, nil
}

// execute pipes the menu video through spumux. The subtitle data is
// embedded in the output stream; no separate files are produced.
func (s *Spumux) execute(ctx context.Context, spumuxPath, xmlFile, menuVideo, outputDir string) error {
	stem := strings.TrimSuffix(filepath.Base(menuVideo), filepath.Ext(menuVideo))
	processedVideo := filepath.Join(outputDir, stem+"_with_buttons.mpv")
	_ = os.Remove(processedVideo)

	input, err := os.Open(menuVideo)
	if err != nil {
		return fmt.Errorf("failed to open menu video: %w", err)
	}
	defer input.Close()
	output, err := os.Create(processedVideo)
	if err != nil {
		return fmt.Errorf("failed to create processed video: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, spumuxTimeout)
	defer cancel()

	s.log.Debugf("Executing spumux: %s -m dvd -P -s 0 %s", spumuxPath, xmlFile)
	stderr, err := s.run(runCtx, input, output, spumuxPath, "-m", "dvd", "-P", "-s", "0", xmlFile)
	output.Close()
	if err != nil {
		os.Remove(processedVideo)
		s.log.Errorf("spumux failed: %v: %s", err, strings.TrimSpace(stderr))
		return fmt.Errorf("spumux execution failed: %w", err)
	}
	if stderr != "" {
		s.log.Debugf("spumux stderr: %s", strings.TrimSpace(stderr))
	}

	info, err := os.Stat(processedVideo)
	if err != nil || info.Size() == 0 {
		os.Remove(processedVideo)
		return fmt.Errorf("spumux completed but no processed video was created")
	}
	if err := os.Rename(processedVideo, menuVideo); err != nil {
		os.Remove(processedVideo)
		return fmt.Errorf("failed to replace menu video: %w", err)
	}
	s.log.Debugf("Replaced menu video with button-enabled version")
	return nil
}
