package incidents

import (
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MediaPhoto    = "photo"
	MediaVideo    = "video"
	MediaDocument = "document"

	DefaultMaxUploadBytes int64 = 10 << 20

	msgFileTooLarge   = "Each file must be smaller than 10MB."
	msgFileTypeDenied = "Invalid file type. Please upload images, videos, or documents only."
)

// Upload is one file of a create request. Open may be called more than once.
type Upload struct {
	Name         string
	Size         int64
	DeclaredType string
	Description  *string
	Open         func() (io.ReadCloser, error)
}

// acceptedTypes maps an allowed extension to the MIME types its content may sniff as.
var acceptedTypes = map[string][]string{
	"jpg":  {"image/jpeg"},
	"jpeg": {"image/jpeg"},
	"png":  {"image/png"},
	"gif":  {"image/gif"},
	"mp4":  {"video/mp4"},
	"mov":  {"video/quicktime"},
	"avi":  {"video/x-msvideo"},
	"pdf":  {"application/pdf"},
	"doc":  {"application/msword", "application/x-ole-storage"},
	"docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
}

// ClassifyMime derives the media type from a MIME type prefix.
func ClassifyMime(mimeType string) string {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(m, "image/"):
		return MediaPhoto
	case strings.HasPrefix(m, "video/"):
		return MediaVideo
	default:
		return MediaDocument
	}
}

func extensionOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// MediaPath is the storage locator of a media file.
func MediaPath(incidentID int64, filename string) string {
	return path.Join("incidents", fmt.Sprint(incidentID), filename)
}

type checkedUpload struct {
	Upload
	ext      string
	mimeType string
}

// checkUploads validates the whole batch before anything is stored.
func checkUploads(uploads []Upload, maxBytes int64, verrs *ValidationError) []checkedUpload {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	out := make([]checkedUpload, 0, len(uploads))
	for i, up := range uploads {
		field := fmt.Sprintf("media.%d", i)
		if up.Size > maxBytes {
			verrs.Add(field, msgFileTooLarge)
			continue
		}
		ext := extensionOf(up.Name)
		accepted, ok := acceptedTypes[ext]
		if !ok {
			verrs.Add(field, msgFileTypeDenied)
			continue
		}
		mt, err := sniff(up)
		if err != nil || !mimeAccepted(mt, accepted) {
			verrs.Add(field, msgFileTypeDenied)
			continue
		}
		out = append(out, checkedUpload{Upload: up, ext: ext, mimeType: canonicalMime(mt, accepted)})
	}
	return out
}

func sniff(up Upload) (string, error) {
	if up.Open == nil {
		return "", fmt.Errorf("upload %q has no content", up.Name)
	}
	r, err := up.Open()
	if err != nil {
		return "", err
	}
	defer r.Close()
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return "", err
	}
	if mt.Is("application/octet-stream") && strings.TrimSpace(up.DeclaredType) != "" {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(up.DeclaredType, ";", 2)[0])), nil
	}
	return mt.String(), nil
}

func mimeAccepted(mt string, accepted []string) bool {
	base := strings.SplitN(mt, ";", 2)[0]
	for _, a := range accepted {
		if strings.EqualFold(base, a) {
			return true
		}
	}
	return false
}

// canonicalMime reports container sniffs (zip, ole) as the extension's primary type.
func canonicalMime(mt string, accepted []string) string {
	base := strings.ToLower(strings.SplitN(mt, ";", 2)[0])
	if base == "application/zip" || base == "application/x-ole-storage" {
		return accepted[0]
	}
	return base
}
