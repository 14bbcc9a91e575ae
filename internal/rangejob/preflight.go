package rangejob

import (
	"archive/zip"
	"bytes"
	"image"
	"image/jpeg"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
)

// Preflight checks that archives can be written and read back and that JPEG
// encoding works. Callers should refuse to start when it fails.
func Preflight() error {
	var a archive
	a.add("preflight.txt", []byte("ok"))
	data, err := a.finalize(nil)
	if err != nil {
		return apperr.New(apperr.CodeLibraryUnavail, "archive writer unavailable", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil || len(zr.File) != 1 {
		return apperr.New(apperr.CodeLibraryUnavail, "archive reader unavailable", err)
	}

	var img bytes.Buffer
	if err := jpeg.Encode(&img, image.NewRGBA(image.Rect(0, 0, 1, 1)), &jpeg.Options{Quality: 92}); err != nil {
		return apperr.New(apperr.CodeLibraryUnavail, "jpeg encoder unavailable", err)
	}
	return nil
}
