package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageSize caps decoded profile pictures.
const MaxImageSize = 5 << 20

var (
	ErrInvalidDataURL = errors.New("profile picture must be a base64 data URL")
	ErrNotAnImage     = errors.New("uploaded file is not an image")
	ErrTooLarge       = errors.New("image exceeds the 5MB limit")
)

// Store persists uploaded media and returns a durable public URL.
type Store interface {
	Upload(ctx context.Context, key string, payload []byte, contentType string) (string, error)
}

// Image is a decoded upload with its sniffed content type.
type Image struct {
	Data        []byte
	ContentType string
	Extension   string
}

// DecodeImageDataURL decodes "data:<type>;base64,<payload>" and checks that the payload really
// is an image. The declared type is ignored in favour of the sniffed one.
func DecodeImageDataURL(dataURL string) (*Image, error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return nil, ErrInvalidDataURL
	}
	comma := strings.IndexByte(dataURL, ',')
	if comma < 0 || !strings.HasSuffix(dataURL[:comma], ";base64") {
		return nil, ErrInvalidDataURL
	}

	encoded := dataURL[comma+1:]
	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxImageSize+3 {
		return nil, ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	if len(data) > MaxImageSize {
		return nil, ErrTooLarge
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, ErrNotAnImage
	}
	return &Image{Data: data, ContentType: mtype.String(), Extension: mtype.Extension()}, nil
}
