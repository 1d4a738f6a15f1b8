package raster

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"
)

// Cache provides thread-safe caching of decoded images and their rasters.
//
// Entries are keyed by file path. Once a file is loaded, later calls for the
// same path return the cached copy without disk I/O. The raster form is built
// lazily the first time LoadRaster is called for a path.
//
// # Memory Management
//
// Entries stay in memory until removed via Evict() or Clear(). A float64
// raster takes 8 bytes per sample, so a 10000x10000 RGB image needs 2.4 GB;
// long-running servers should evict rasters they are done with.
//
// # Example Usage
//
//	cache := raster.NewCache()
//	r, err := cache.LoadRaster("/path/to/scene.tif")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// segment r...
//	cache.Evict("/path/to/scene.tif")
type Cache struct {
	mu      sync.RWMutex
	images  map[string]image.Image
	rasters map[string]*Raster
}

// NewCache creates an empty cache, ready for concurrent use.
func NewCache() *Cache {
	return &Cache{
		images:  make(map[string]image.Image),
		rasters: make(map[string]*Raster),
	}
}

// Open decodes an image file without caching it.
//
// TIFF files are decoded with golang.org/x/image/tiff, which keeps 16-bit
// samples. PNG, JPEG, GIF and BMP files go through imaging.Open, which also
// applies the EXIF orientation of JPEG files.
func Open(path string) (image.Image, error) {
	if isTIFF(path) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open image: %w", err)
		}
		defer f.Close()

		img, err := tiff.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("failed to decode tiff: %w", err)
		}
		return img, nil
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func isTIFF(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return true
	}
	return false
}

// Load retrieves an image from the cache or decodes it from disk.
//
// # Errors
//
//   - Returns error if the file does not exist or cannot be read
//   - Returns error if the file is not a supported image
func (c *Cache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := Open(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// LoadRaster returns the raster form of the image at path, converting and
// caching it on first use.
func (c *Cache) LoadRaster(path string) (*Raster, error) {
	c.mu.RLock()
	if r, ok := c.rasters[path]; ok {
		c.mu.RUnlock()
		return r, nil
	}
	c.mu.RUnlock()

	img, err := c.Load(path)
	if err != nil {
		return nil, err
	}
	r := FromImage(img)

	c.mu.Lock()
	c.rasters[path] = r
	c.mu.Unlock()

	return r, nil
}

// Clear removes every entry from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.rasters = make(map[string]*Raster)
	c.mu.Unlock()
}

// Evict removes one path from the cache. Unknown paths are ignored.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	delete(c.rasters, path)
	c.mu.Unlock()
}

// Info describes an image file as the segmenter sees it.
type Info struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Bands is the number of raster bands FromImage produces: 1 or 3.
	Bands int `json:"bands"`

	// Format is detected from the file extension: "png", "jpeg", "gif",
	// "tiff", "bmp" or "unknown".
	Format string `json:"format"`

	// ColorDepth is "8-bit" or "16-bit".
	ColorDepth string `json:"color_depth"`

	// FileSizeBytes is the size of the file on disk.
	FileSizeBytes int64 `json:"file_size_bytes"`

	// Ranges holds the value range of every band. No-data is not excluded.
	Ranges []BandRange `json:"ranges"`
}

// LoadInfo loads the raster at path through the cache and describes it.
func LoadInfo(cache *Cache, path string) (*Info, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}
	r, err := cache.LoadRaster(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	format := "unknown"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		format = "png"
	case ".jpg", ".jpeg":
		format = "jpeg"
	case ".gif":
		format = "gif"
	case ".tif", ".tiff":
		format = "tiff"
	case ".bmp":
		format = "bmp"
	}

	depth := "8-bit"
	if Is16Bit(img) {
		depth = "16-bit"
	}

	noData := make([]float64, r.Bands())
	for i := range noData {
		noData[i] = -1
	}
	ranges, err := BandStats(r, noData)
	if err != nil {
		return nil, err
	}

	return &Info{
		Width:         r.Width(),
		Height:        r.Height(),
		Bands:         r.Bands(),
		Format:        format,
		ColorDepth:    depth,
		FileSizeBytes: stat.Size(),
		Ranges:        ranges,
	}, nil
}
