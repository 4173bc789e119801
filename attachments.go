package pubsite

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"github.com/eringen/pubsite/forms"
)

const jpegQuality = 80

// readAttachments loads every uploaded file of a multipart form. Images
// wider than maxWidth are downscaled to JPEG; maxWidth 0 keeps originals.
func readAttachments(form *multipart.Form, maxWidth int) ([]forms.Attachment, error) {
	if form == nil {
		return nil, nil
	}
	var out []forms.Attachment
	for _, headers := range form.File {
		for _, fh := range headers {
			att, err := readAttachment(fh, maxWidth)
			if err != nil {
				return nil, fmt.Errorf("attachment %q: %w", fh.Filename, err)
			}
			out = append(out, att)
		}
	}
	return out, nil
}

func readAttachment(fh *multipart.FileHeader, maxWidth int) (forms.Attachment, error) {
	src, err := fh.Open()
	if err != nil {
		return forms.Attachment{}, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return forms.Attachment{}, err
	}
	att := forms.Attachment{
		Filename:    filepath.Base(fh.Filename),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}
	if maxWidth > 0 && strings.HasPrefix(att.ContentType, "image/") {
		if scaled, ok := downscaleImage(data, maxWidth); ok {
			att.Data = scaled
			att.ContentType = "image/jpeg"
			att.Filename = strings.TrimSuffix(att.Filename, filepath.Ext(att.Filename)) + ".jpg"
		}
	}
	return att, nil
}

// downscaleImage re-encodes an image as JPEG at maxWidth when it is wider.
// It reports false when the image is already small enough or cannot be
// decoded, in which case the original bytes are kept.
func downscaleImage(data []byte, maxWidth int) ([]byte, bool) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxWidth {
		return nil, false
	}
	newH := h * maxWidth / w
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

func attachmentNames(atts []forms.Attachment) []string {
	names := make([]string, 0, len(atts))
	for _, a := range atts {
		names = append(names, a.Filename)
	}
	return names
}
