// Package imagesource supplies raw photo bytes for analysis. A reference is
// an opaque string: a local file path or an http(s) URL. Loaded images are
// re-encoded as bounded-size JPEG before being handed to a model; the upload
// is model input, not archival, so lossy compression is fine.
package imagesource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrImageLoad indicates the reference could not be resolved into a usable
// image. It is fatal to an analysis request: without bytes there is nothing
// for either path to analyze.
var ErrImageLoad = errors.New("imagesource: image load failure")

// Config holds configuration for the loader.
type Config struct {
	MaxDimension int           // max long side (px) sent to models, 0 = original
	JPEGQuality  int           // quality of the re-encoded upload
	HTTPTimeout  time.Duration // timeout for URL references
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return Config{
		MaxDimension: 1536,
		JPEGQuality:  85,
		HTTPTimeout:  30 * time.Second,
	}
}

// Loader resolves image references into model-ready JPEG bytes.
type Loader struct {
	config     Config
	httpClient *http.Client
}

// New creates a Loader with default configuration.
func New() *Loader {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Loader with custom configuration.
func NewWithConfig(config Config) *Loader {
	defaults := DefaultConfig()
	if config.MaxDimension < 0 {
		config.MaxDimension = defaults.MaxDimension
	}
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = defaults.JPEGQuality
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = defaults.HTTPTimeout
	}
	return &Loader{
		config:     config,
		httpClient: &http.Client{Timeout: config.HTTPTimeout},
	}
}

// Load resolves a reference (file path or URL) into model-ready JPEG bytes:
// decode, downscale the long side to MaxDimension, re-encode. All failures
// wrap ErrImageLoad.
func (l *Loader) Load(ctx context.Context, reference string) ([]byte, error) {
	raw, err := l.fetch(ctx, reference)
	if err != nil {
		return nil, err
	}

	img, err := decodeImage(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrImageLoad, reference, err)
	}

	return l.encodeJPEG(img)
}

func (l *Loader) fetch(ctx context.Context, reference string) ([]byte, error) {
	if strings.HasPrefix(reference, "http://") || strings.HasPrefix(reference, "https://") {
		return l.fetchURL(ctx, reference)
	}

	data, err := os.ReadFile(reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageLoad, err)
	}
	return data, nil
}

func (l *Loader) fetchURL(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageLoad, err)
	}
	req.Header.Set("User-Agent", "damage-analyzer/1.0")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageLoad, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d fetching %s", ErrImageLoad, resp.StatusCode, imageURL)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: not an image (Content-Type: %s)", ErrImageLoad, contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageLoad, err)
	}
	return data, nil
}

// decodeImage decodes JPEG/PNG/WebP bytes. The x/image WebP decoder is
// registered via import; the chai2010 decoder covers files it rejects.
func decodeImage(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, errors.New("unknown or unsupported format")
}

func (l *Loader) encodeJPEG(img image.Image) ([]byte, error) {
	if l.config.MaxDimension > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > l.config.MaxDimension || h > l.config.MaxDimension {
			if w >= h {
				img = imaging.Resize(img, l.config.MaxDimension, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, l.config.MaxDimension, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: l.config.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrImageLoad, err)
	}
	return buf.Bytes(), nil
}
