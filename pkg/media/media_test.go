package media

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1x1 transparent PNG
const pixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

func TestDecodeImageDataURL(t *testing.T) {
	img, err := DecodeImageDataURL("data:image/jpeg;base64," + pixelPNG)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, ".png", img.Extension)
	assert.NotEmpty(t, img.Data)
}

func TestDecodeImageDataURLRejectsNonImages(t *testing.T) {
	text := base64.StdEncoding.EncodeToString([]byte("hello world, definitely not a picture"))
	_, err := DecodeImageDataURL("data:image/png;base64," + text)
	assert.ErrorIs(t, err, ErrNotAnImage)
}

func TestDecodeImageDataURLRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{
		"https://example.com/a.png",
		"data:image/png," + pixelPNG,
		"data:image/png;base64,@@@",
	} {
		_, err := DecodeImageDataURL(in)
		assert.ErrorIs(t, err, ErrInvalidDataURL, in)
	}
}

func TestDecodeImageDataURLRejectsLargePayloads(t *testing.T) {
	big := strings.Repeat("A", (MaxImageSize/3)*4+400)
	_, err := DecodeImageDataURL("data:image/png;base64," + big)
	assert.ErrorIs(t, err, ErrTooLarge)
}
