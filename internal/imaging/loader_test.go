package imaging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestImageCache_LoadAndEvict(t *testing.T) {
	dir := t.TempDir()
	path := saveTestPNG(t, dir, "sheet.png", createGrayImage(30, 20, 100))

	cache := NewImageCache(2)
	img, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if img.Bounds().Dx() != 30 || img.Bounds().Dy() != 20 {
		t.Errorf("loaded image bounds = %v", img.Bounds())
	}

	// Removing the file proves the second load is served from memory.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Load(path); err != nil {
		t.Errorf("cached Load() error: %v", err)
	}

	cache.Evict(path)
	if _, err := cache.Load(path); err == nil {
		t.Error("Load() after Evict() should hit the missing file")
	}
}

func TestImageCache_Bounded(t *testing.T) {
	dir := t.TempDir()
	cache := NewImageCache(2)
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		p := saveTestPNG(t, dir, name, createGrayImage(4, 4, 0))
		if _, err := cache.Load(p); err != nil {
			t.Fatalf("Load(%s) error: %v", name, err)
		}
	}
	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cache.Len())
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Len() after Clear() = %d, want 0", cache.Len())
	}
}

func TestImageCache_MissingFile(t *testing.T) {
	cache := NewImageCache(0)
	_, err := cache.Load(filepath.Join(t.TempDir(), "nope.png"))
	if err == nil || !strings.Contains(err.Error(), "failed to open image") {
		t.Errorf("Load() error = %v, want open failure", err)
	}
}

func TestLoadImageInfo(t *testing.T) {
	dir := t.TempDir()
	path := saveTestPNG(t, dir, "info.PNG", createGrayImage(1000, 500, 50))

	info, err := LoadImageInfo(NewImageCache(1), path)
	if err != nil {
		t.Fatalf("LoadImageInfo() error: %v", err)
	}
	if info.Width != 1000 || info.Height != 500 {
		t.Errorf("size = %dx%d, want 1000x500", info.Width, info.Height)
	}
	if info.Format != "png" {
		t.Errorf("Format = %s, want png", info.Format)
	}
	if info.Megapixels != 0.5 {
		t.Errorf("Megapixels = %f, want 0.5", info.Megapixels)
	}
	if info.FileSize == "" || info.FileSizeBytes <= 0 {
		t.Errorf("file size not reported: %+v", info)
	}

	dims, err := GetDimensions(NewImageCache(1), path)
	if err != nil {
		t.Fatalf("GetDimensions() error: %v", err)
	}
	if dims.Width != 1000 || dims.Height != 500 {
		t.Errorf("GetDimensions() = %+v", dims)
	}
}
