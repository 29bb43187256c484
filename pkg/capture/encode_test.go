package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLossless(t *testing.T) {
	src := createMarkedFrame(40, 30, image.Rect(5, 5, 15, 25))

	for _, f := range []Format{FormatPNG, FormatBMP, FormatTIFF} {
		t.Run(string(f), func(t *testing.T) {
			data, err := Encode(src, f)
			require.NoError(t, err)

			img, format, err := image.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, string(f), format)
			assert.Equal(t, src.Bounds(), img.Bounds())

			r, g, b, a := img.At(10, 10).RGBA()
			assert.Equal(t, []uint32{0xffff, 0, 0, 0xffff}, []uint32{r, g, b, a})
			r, g, b, _ = img.At(30, 20).RGBA()
			assert.Equal(t, []uint32{0, 0, 0xffff}, []uint32{r, g, b})
		})
	}
}

func TestEncodeUnsupported(t *testing.T) {
	_, err := Encode(createTestImage(2, 2, red), Format("jpeg"))
	assert.Error(t, err)
}

func TestCapturedImageEncodeName(t *testing.T) {
	c := &CapturedImage{Panel: "spine", Image: createTestImage(35, 248, red)}
	data, name, err := c.Encode(FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, "spine_cover.png", name)
	assert.NotEmpty(t, data)
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"":     FormatPNG,
		"PNG":  FormatPNG,
		".bmp": FormatBMP,
		"tif":  FormatTIFF,
		"tiff": FormatTIFF,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("jpg")
	assert.Error(t, err, "lossy formats are not offered for export")
}

func TestFormatContentType(t *testing.T) {
	assert.Equal(t, "image/png", FormatPNG.ContentType())
	assert.Equal(t, "image/bmp", FormatBMP.ContentType())
	assert.Equal(t, "image/tiff", FormatTIFF.ContentType())
	assert.Equal(t, "back_cover.tiff", FileName("back", FormatTIFF))
}

func TestDecode(t *testing.T) {
	data, err := Encode(createTestImage(8, 6, blue), FormatPNG)
	require.NoError(t, err)

	img, format, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, _, err = Decode([]byte("not an image"))
	assert.Error(t, err)
}

// pngDeclaring rewrites the IHDR of a 1x1 PNG to claim w x h pixels.
func pngDeclaring(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data, err := Encode(createTestImage(1, 1, blue), FormatPNG)
	require.NoError(t, err)
	require.Equal(t, "IHDR", string(data[12:16]))

	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDecodeLimited(t *testing.T) {
	data, err := Encode(createTestImage(8, 6, blue), FormatPNG)
	require.NoError(t, err)

	img, _, err := DecodeLimited(data, 48)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())

	_, _, err = DecodeLimited(data, 47)
	assert.True(t, errors.Is(err, ErrFrameTooLarge))

	_, _, err = DecodeLimited(data, 0)
	assert.NoError(t, err)
}

func TestDecodeLimitedRejectsForgedHeader(t *testing.T) {
	data := pngDeclaring(t, 100000, 100000)
	assert.Less(t, len(data), 200)

	_, _, err := DecodeLimited(data, 40_000_000)
	assert.True(t, errors.Is(err, ErrFrameTooLarge))
	assert.ErrorContains(t, err, "100000x100000")
}
