package media

import (
	"bytes"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	_ "golang.org/x/image/webp" // register WebP decoder
)

var stagedNamePattern = regexp.MustCompile(`^[0-9a-f]{16}\.(jpg|jpeg|png|gif|webp)$`)

// ValidFilename reports whether name has the shape of a staged filename. Anything
// else, including path separators, is rejected before touching the filesystem.
func ValidFilename(name string) bool {
	return stagedNamePattern.MatchString(name)
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "image/jpg" {
		return "image/jpeg"
	}
	return mediaType
}

func isAllowedImageMIME(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func decodedFormatToMime(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}

// sniff returns the image type of content, confirmed by both the magic bytes and
// a successful header decode. It returns "" for anything else.
func sniff(content []byte) string {
	detected := normalizeContentType(http.DetectContentType(content))
	if !isAllowedImageMIME(detected) {
		return ""
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil || decodedFormatToMime(format) != detected {
		return ""
	}
	return detected
}

// extensionFor keeps the original extension when it names the same image type,
// otherwise derives one from the MIME type.
func extensionFor(originalName, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	switch mimeType {
	case "image/jpeg":
		if ext == ".jpg" || ext == ".jpeg" {
			return ext
		}
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ""
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
