package constants

import (
	"bytes"
	"path/filepath"
	"strings"
)

// DocType is the declared type of a submitted artifact.
type DocType string

const (
	DocTypePDF   DocType = "PDF"
	DocTypeImage DocType = "IMAGE"
)

// DefaultAllowedExtensions holds the extensions accepted for upload.
var DefaultAllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
	"bmp":  {},
	"webp": {},
}

var extMIME = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"bmp":  "image/bmp",
	"webp": "image/webp",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ExtOf returns the normalized extension of a file name.
func ExtOf(name string) string {
	return NormalizeExt(filepath.Ext(name))
}

// MapExtToDocType maps a normalized extension to a document type.
func MapExtToDocType(ext string) (DocType, bool) {
	switch NormalizeExt(ext) {
	case "pdf":
		return DocTypePDF, true
	case "jpg", "jpeg", "png", "tif", "tiff", "bmp", "webp":
		return DocTypeImage, true
	}
	return "", false
}

// MIMEForExt returns the content type for an extension, or octet-stream.
func MIMEForExt(ext string) string {
	if m, ok := extMIME[NormalizeExt(ext)]; ok {
		return m
	}
	return "application/octet-stream"
}

// DocTypeFromMIME maps a declared content type. Parameters are ignored.
func DocTypeFromMIME(contentType string) (DocType, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case ct == "application/pdf":
		return DocTypePDF, true
	case strings.HasPrefix(ct, "image/"):
		return DocTypeImage, true
	}
	return "", false
}

// SniffDocType inspects magic bytes.
func SniffDocType(data []byte) (DocType, bool) {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return DocTypePDF, true
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")),
		bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}),
		bytes.HasPrefix(data, []byte("GIF8")),
		bytes.HasPrefix(data, []byte("II*\x00")),
		bytes.HasPrefix(data, []byte("MM\x00*")),
		bytes.HasPrefix(data, []byte("BM")):
		return DocTypeImage, true
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return DocTypeImage, true
	}
	return "", false
}

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
