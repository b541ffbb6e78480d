package pageverify

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/glaslos/ssdeep"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Artifact describes a screenshot written for a target.
type Artifact struct {
	Target     Target
	URL        string // resolved target URL
	LandingURL string // URL of the page when it was captured
	Title      string // observed title, empty when no title was expected
	Path       string
	Similarity int // ssdeep score against the file it replaced, -1 if none
}

type Image []byte

// WriteArtifact writes image to path, creating parent directories and
// replacing any existing file.
func WriteArtifact(path string, image Image) (err error) {
	if len(image) == 0 {
		return ErrEmptyScreenshot
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = file.Write(image)
	return err
}

// readPrevious returns the artifact currently at path, nil if there is none.
func readPrevious(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Similarity returns the ssdeep similarity score (0-100) of two images, or
// -1 when either cannot be hashed. ssdeep refuses inputs below 4096 bytes.
func Similarity(previous, current []byte) int {
	if len(previous) == 0 || len(current) == 0 {
		return -1
	}

	hash1, err := ssdeep.FuzzyBytes(previous)
	if err != nil {
		return -1
	}

	hash2, err := ssdeep.FuzzyBytes(current)
	if err != nil {
		return -1
	}

	score, err := ssdeep.Distance(hash1, hash2)
	if err != nil {
		return -1
	}
	return score
}

// AddTextToImage adds the URL in a band below the image.
func (imgB Image) AddTextToImage(rawURL string) (Image, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	removeDefaultPort(parsedURL)
	printURL := parsedURL.Scheme + "://" + parsedURL.Host + parsedURL.EscapedPath()

	img, err := png.Decode(bytes.NewReader(imgB))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	face, err := loadFont()
	if err != nil {
		return nil, err
	}

	const padding = 20
	const borderSize = 1

	w := img.Bounds().Dx()
	h := img.Bounds().Dy() + padding*2 + borderSize
	dc := gg.NewContext(w, h)

	dc.DrawImage(img, 0, 0)

	yLine := float64(img.Bounds().Dy())
	dc.SetColor(color.White)
	dc.DrawRectangle(0, yLine, float64(w), float64(padding*2+borderSize))
	dc.Fill()
	dc.SetColor(color.Black)
	dc.SetLineWidth(float64(borderSize))
	dc.DrawLine(0, yLine, float64(w), yLine)
	dc.Stroke()
	dc.SetFontFace(face)
	dc.DrawStringAnchored(printURL, float64(w)/2, yLine+float64(padding), 0.5, 0.3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return buf.Bytes(), nil
}

func loadFont() (font.Face, error) {
	ttFont, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded font: %w", err)
	}

	return truetype.NewFace(ttFont, &truetype.Options{
		Size: 14,
	}), nil
}
