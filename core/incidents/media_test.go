package incidents

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
)

func memUpload(name string, data []byte) Upload {
	return Upload{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

func TestClassifyMime(t *testing.T) {
	cases := map[string]string{
		"image/png":       MediaPhoto,
		"IMAGE/JPEG":      MediaPhoto,
		"video/mp4":       MediaVideo,
		"video/quicktime": MediaVideo,
		"application/pdf": MediaDocument,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": MediaDocument,
		"": MediaDocument,
	}
	for in, want := range cases {
		if got := ClassifyMime(in); got != want {
			t.Fatalf("ClassifyMime(%q)=%s want %s", in, got, want)
		}
	}
}

func TestCheckUploadsAcceptsKnownTypes(t *testing.T) {
	verrs := &ValidationError{}
	files := checkUploads([]Upload{memUpload("door.PNG", pngBytes), memUpload("report.pdf", pdfBytes)}, 0, verrs)
	if !verrs.Empty() {
		t.Fatalf("unexpected errors: %v", verrs.Fields)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].ext != "png" || files[0].mimeType != "image/png" {
		t.Fatalf("unexpected png detection: %+v", files[0])
	}
	if files[1].mimeType != "application/pdf" {
		t.Fatalf("unexpected pdf detection: %s", files[1].mimeType)
	}
}

func TestCheckUploadsRejections(t *testing.T) {
	big := memUpload("huge.jpg", pngBytes)
	big.Size = DefaultMaxUploadBytes + 1
	uploads := []Upload{
		memUpload("ok.png", pngBytes),
		big,
		memUpload("notes.txt", []byte("hello")),
		memUpload("fake.png", []byte("plain text pretending to be an image")),
		memUpload("mismatch.pdf", pngBytes),
	}
	verrs := &ValidationError{}
	files := checkUploads(uploads, 0, verrs)
	if len(files) != 1 {
		t.Fatalf("expected only the first file accepted, got %d", len(files))
	}
	want := map[string]string{
		"media.1": msgFileTooLarge,
		"media.2": msgFileTypeDenied,
		"media.3": msgFileTypeDenied,
		"media.4": msgFileTypeDenied,
	}
	for k, v := range want {
		if verrs.Fields[k] != v {
			t.Fatalf("%s: got %q want %q", k, verrs.Fields[k], v)
		}
	}
	if _, ok := verrs.Fields["media.0"]; ok {
		t.Fatalf("valid file must not be flagged")
	}
}

func TestCheckUploadsFallsBackToDeclaredType(t *testing.T) {
	up := memUpload("clip.mov", []byte{0x00, 0x01, 0x02, 0x03})
	up.DeclaredType = "video/quicktime"
	verrs := &ValidationError{}
	files := checkUploads([]Upload{up}, 0, verrs)
	if !verrs.Empty() || len(files) != 1 || files[0].mimeType != "video/quicktime" {
		t.Fatalf("expected declared type fallback, got %+v %v", files, verrs.Fields)
	}
}

func TestLocalStorePutAndLimits(t *testing.T) {
	root := t.TempDir()
	ls, err := NewLocalStore(root)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	ctx := context.Background()
	n, err := ls.Put(ctx, MediaPath(7, "a.png"), bytes.NewReader(pngBytes), 0)
	if err != nil || n != int64(len(pngBytes)) {
		t.Fatalf("put: n=%d err=%v", n, err)
	}
	if _, err := os.Stat(filepath.Join(root, "incidents", "7", "a.png")); err != nil {
		t.Fatalf("file missing: %v", err)
	}
	if _, err := ls.Put(ctx, "incidents/7/b.png", strings.NewReader("0123456789"), 4); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "incidents", "7", "b.png")); !os.IsNotExist(err) {
		t.Fatalf("oversized file must not be kept")
	}
	if _, err := ls.Put(ctx, "../escape.png", strings.NewReader("x"), 0); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
	if err := ls.Remove(ctx, MediaPath(7, "a.png")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := ls.Remove(ctx, MediaPath(7, "a.png")); err != nil {
		t.Fatalf("second remove should be a no-op: %v", err)
	}
}
