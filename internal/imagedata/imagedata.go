// Package imagedata converts raw image bytes to and from the self-describing
// data URL form ("data:<mime>;base64,<payload>") used on the wire.
package imagedata

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMIMEType is used when an image arrives without a reported type.
const DefaultMIMEType = "image/png"

const (
	scheme       = "data:"
	base64Marker = ";base64,"
)

// ErrMalformed is returned by Decode for anything that is not a base64 data URL.
var ErrMalformed = errors.New("malformed image data URL")

// Image is a MIME-tagged blob of raw image bytes.
type Image struct {
	MIMEType string
	Data     []byte
}

// ReadError reports that the source of an image could not be read.
type ReadError struct {
	Source string
	Err    error
}

func (e *ReadError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("reading image: %v", e.Err)
	}
	return fmt.Sprintf("reading image %s: %v", e.Source, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Encode renders img as a data URL. The bytes are not touched.
func Encode(img Image) string {
	mt := img.MIMEType
	if mt == "" {
		mt = DefaultMIMEType
	}
	var b strings.Builder
	b.Grow(len(scheme) + len(mt) + len(base64Marker) + base64.StdEncoding.EncodedLen(len(img.Data)))
	b.WriteString(scheme)
	b.WriteString(mt)
	b.WriteString(base64Marker)
	b.WriteString(base64.StdEncoding.EncodeToString(img.Data))
	return b.String()
}

// Decode parses a data URL produced by Encode (or a browser FileReader).
// Only canonical padded base64 is accepted, so Encode(Decode(s)) == s.
func Decode(s string) (Image, error) {
	rest, ok := strings.CutPrefix(s, scheme)
	if !ok {
		return Image{}, ErrMalformed
	}
	mt, payload, ok := strings.Cut(rest, base64Marker)
	if !ok || mt == "" || payload == "" {
		return Image{}, ErrMalformed
	}
	// The decoder skips line breaks even in strict mode.
	if strings.ContainsAny(payload, "\r\n") {
		return Image{}, ErrMalformed
	}
	data, err := base64.StdEncoding.Strict().DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(data) == 0 {
		return Image{}, ErrMalformed
	}
	return Image{MIMEType: mt, Data: data}, nil
}

// Read consumes r completely. An empty mimeType is sniffed from the content.
func Read(r io.Reader, mimeType string) (Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Image{}, &ReadError{Err: err}
	}
	if mimeType == "" {
		mimeType = Detect(data)
	}
	return Image{MIMEType: mimeType, Data: data}, nil
}

// ReadFile loads an image from disk, sniffing its MIME type.
func ReadFile(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return Image{}, &ReadError{Source: path, Err: err}
	}
	defer f.Close()

	img, err := Read(f, "")
	if err != nil {
		var re *ReadError
		if errors.As(err, &re) {
			re.Source = path
		}
		return Image{}, err
	}
	return img, nil
}

// Detect returns the MIME type of data, without parameters.
func Detect(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return mt
}
