package catalogmodule

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	"github.com/mantonx/coursevault/internal/config"
)

// CoverStore keeps uploaded course covers on disk
type CoverStore struct {
	dir     string
	format  string
	quality int
	maxSize int64
}

// NewCoverStore creates a store rooted at cfg.UploadDir
func NewCoverStore(cfg config.StorageConfig) *CoverStore {
	quality := cfg.CoverQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &CoverStore{
		dir:     cfg.UploadDir,
		format:  strings.ToLower(cfg.CoverFormat),
		quality: quality,
		maxSize: cfg.MaxCoverSize,
	}
}

// Save stores an uploaded image and returns its file name. Images are
// re-encoded to WebP unless the store keeps originals.
func (s *CoverStore) Save(r io.Reader, originalName string) (string, error) {
	limit := s.maxSize
	if limit <= 0 {
		limit = 10 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("failed to read cover: %w", err)
	}
	if int64(len(data)) > limit {
		return "", ErrCoverTooLarge
	}

	mimeType := http.DetectContentType(data)
	img, err := decodeImage(data, mimeType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCover, err)
	}

	var (
		out []byte
		ext string
	)
	if s.format == "original" {
		out = data
		ext = strings.ToLower(filepath.Ext(filepath.Base(originalName)))
		if ext == "" {
			ext = extensionForMime(mimeType)
		}
	} else {
		out, ext, err = s.encode(img)
		if err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), out, 0644); err != nil {
		return "", fmt.Errorf("failed to write cover: %w", err)
	}
	return name, nil
}

// Remove deletes a stored cover. Missing files are ignored.
func (s *CoverStore) Remove(name string) error {
	if name == "" {
		return nil
	}
	err := os.Remove(s.Path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cover %s: %w", name, err)
	}
	return nil
}

// Path returns the on-disk location of a stored cover
func (s *CoverStore) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

func (s *CoverStore) encode(img image.Image) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(s.quality)}); err != nil {
		// Fall back to JPEG if WebP encoding fails
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
			return nil, "", fmt.Errorf("failed to encode cover: %w", err)
		}
		return buf.Bytes(), ".jpg", nil
	}
	return buf.Bytes(), ".webp", nil
}

func decodeImage(data []byte, mimeType string) (image.Image, error) {
	reader := bytes.NewReader(data)

	switch mimeType {
	case "image/jpeg":
		return jpeg.Decode(reader)
	case "image/png":
		return png.Decode(reader)
	case "image/gif":
		return gif.Decode(reader)
	case "image/webp":
		return webp.Decode(reader)
	default:
		return nil, fmt.Errorf("unsupported content type %s", mimeType)
	}
}

func extensionForMime(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
