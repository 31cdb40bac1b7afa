package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	// Decoders registered for image.DecodeConfig
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// FileInfo describes an image file on disk
type FileInfo struct {
	Path     string
	Name     string
	Size     int64
	MimeType string
	Width    *int
	Height   *int
	Hash     string // hex SHA-256 of the content
}

// GetMimeType returns the MIME type based on file extension
func GetMimeType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	mimeTypes := map[string]string{
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".gif":  "image/gif",
		".webp": "image/webp",
		".bmp":  "image/bmp",
		".svg":  "image/svg+xml",
	}

	if mime, ok := mimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// HasFormat checks the file extension against a list like {"jpg", "png"}.
// "jpg" also admits ".jpeg".
func HasFormat(filePath string, formats []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
	if ext == "jpeg" {
		ext = "jpg"
	}
	for _, f := range formats {
		f = strings.TrimPrefix(strings.ToLower(f), ".")
		if f == "jpeg" {
			f = "jpg"
		}
		if f == ext {
			return true
		}
	}
	return false
}

// GetFileSize returns the file size in bytes
func GetFileSize(filePath string) (int64, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to get file info: %w", err)
	}
	return info.Size(), nil
}

// InspectImage reads an image file once for its hash and, when the format
// has a registered decoder, its dimensions.
func InspectImage(filePath string) (*FileInfo, error) {
	size, err := GetFileSize(filePath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("failed to hash image: %w", err)
	}

	info := &FileInfo{
		Path:     filePath,
		Name:     filepath.Base(filePath),
		Size:     size,
		MimeType: GetMimeType(filePath),
		Hash:     hex.EncodeToString(h.Sum(nil)),
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind image: %w", err)
	}
	if cfg, _, err := image.DecodeConfig(f); err == nil {
		w, h := cfg.Width, cfg.Height
		info.Width, info.Height = &w, &h
	}

	return info, nil
}
