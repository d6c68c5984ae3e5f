package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ironsheep/medscan-mcp/internal/apperr"
)

// RawImage is a decoded bitmap exactly as acquired from a file, an upload or
// a camera frame. It is never modified by the pipeline.
type RawImage struct {
	// Image is the decoded bitmap with EXIF orientation applied.
	Image image.Image

	// Format is the decoder name: "png", "jpeg", "gif", ...
	Format string

	// MIME is the sniffed content type, e.g. "image/jpeg".
	MIME string

	// Source describes where the image came from (a path, "upload" or "camera").
	Source string
}

// Width returns the bitmap width in pixels.
func (r *RawImage) Width() int { return r.Image.Bounds().Dx() }

// Height returns the bitmap height in pixels.
func (r *RawImage) Height() int { return r.Image.Bounds().Dy() }

// FromImage wraps an already-decoded bitmap, e.g. a captured camera frame.
func FromImage(img image.Image, source string) *RawImage {
	return &RawImage{Image: img, Format: "bitmap", MIME: "image/x-bitmap", Source: source}
}

// DecodeBytes validates and decodes an encoded image payload.
//
// declaredMIME is the content type claimed by the caller (may be empty). Both
// the declared and the sniffed content type must be image/*; anything else is
// rejected before decoding with an acquisition error.
func DecodeBytes(data []byte, declaredMIME, source string) (*RawImage, error) {
	if len(data) == 0 {
		return nil, apperr.Acquisition(apperr.ReasonNoFile, "no image data", nil)
	}
	if declaredMIME != "" && !isImageMIME(declaredMIME) {
		return nil, apperr.Acquisition(apperr.ReasonUnsupportedType,
			fmt.Sprintf("declared type %q is not an image", declaredMIME), nil)
	}
	sniffed := http.DetectContentType(data)
	if !isImageMIME(sniffed) {
		return nil, apperr.Acquisition(apperr.ReasonUnsupportedType,
			fmt.Sprintf("content type %q is not an image", sniffed), nil)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Acquisition(apperr.ReasonDecodeFailed, "failed to decode image header", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperr.Acquisition(apperr.ReasonDecodeFailed, "failed to decode image", err)
	}

	return &RawImage{
		Image:  img,
		Format: format,
		MIME:   sniffed,
		Source: source,
	}, nil
}

func isImageMIME(mime string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "image/")
}

// LoadFile reads and decodes an image from disk.
func LoadFile(path string) (*RawImage, error) {
	if path == "" {
		return nil, apperr.Acquisition(apperr.ReasonNoFile, "no file selected", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.Acquisition(apperr.ReasonNoFile, fmt.Sprintf("file not found: %s", path), err)
		}
		return nil, apperr.Acquisition(apperr.ReasonDecodeFailed, "failed to read file", err)
	}
	return DecodeBytes(data, "", path)
}

// DefaultCacheSize bounds the number of images NewImageCache keeps.
const DefaultCacheSize = 16

// ImageCache provides thread-safe caching of loaded images to avoid redundant disk reads.
//
// The cache holds at most its size in images and drops the least recently
// used one first. File entries are revalidated against the file's size and
// modification time on every Load, so an edited file is decoded again.
// Entries stored with Put have no backing file and are served as is.
type ImageCache struct {
	images *lru.Cache[string, cacheEntry]
}

type cacheEntry struct {
	img     *RawImage
	stored  bool
	size    int64
	modTime time.Time
}

// NewImageCache creates an empty cache holding up to DefaultCacheSize images.
func NewImageCache() *ImageCache {
	return NewImageCacheSize(DefaultCacheSize)
}

// NewImageCacheSize creates an empty cache holding up to size images.
// A size below 1 is treated as 1.
func NewImageCacheSize(size int) *ImageCache {
	if size < 1 {
		size = 1
	}
	images, err := lru.New[string, cacheEntry](size)
	if err != nil {
		panic(err) // only returned for a non-positive size
	}
	return &ImageCache{images: images}
}

// Load retrieves an image from the cache or loads it from disk if not cached
// or changed since it was cached.
func (c *ImageCache) Load(path string) (*RawImage, error) {
	entry, ok := c.images.Get(path)
	if ok && entry.stored {
		return entry.img, nil
	}

	fi, err := os.Stat(path)
	if err == nil && ok && fi.Size() == entry.size && fi.ModTime().Equal(entry.modTime) {
		return entry.img, nil
	}
	c.images.Remove(path)

	img, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if fi != nil {
		c.images.Add(path, cacheEntry{img: img, size: fi.Size(), modTime: fi.ModTime()})
	}
	return img, nil
}

// Put stores an image under key. Later Load calls with the same key return
// it without touching the disk, until it is evicted.
func (c *ImageCache) Put(key string, img *RawImage) {
	c.images.Add(key, cacheEntry{img: img, stored: true})
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	return c.images.Len()
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.images.Purge()
}

// Evict removes a specific image from the cache by its path.
func (c *ImageCache) Evict(path string) {
	c.images.Remove(path)
}

// ImageInfo contains metadata about an acquired image.
type ImageInfo struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	MIME     string `json:"mime_type"`
	HasAlpha bool   `json:"has_alpha"`
	Source   string `json:"source"`
}

// Info describes a RawImage.
func Info(raw *RawImage) ImageInfo {
	hasAlpha := false
	switch raw.Image.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		hasAlpha = true
	}
	return ImageInfo{
		Width:    raw.Width(),
		Height:   raw.Height(),
		Format:   raw.Format,
		MIME:     raw.MIME,
		HasAlpha: hasAlpha,
		Source:   raw.Source,
	}
}
