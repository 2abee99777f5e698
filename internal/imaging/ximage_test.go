package imaging

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/photobuilder/internal/testutil"
)

func TestReadMetadata_Dimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg")
	testutil.WriteJPEG(t, path, 120, 80)

	md, err := NewCodec().ReadMetadata(path)
	require.NoError(t, err)
	require.Equal(t, 120, md.Width)
	require.Equal(t, 80, md.Height)
	require.Nil(t, md.Exif, "encoder writes no EXIF block")
}

func TestReadMetadata_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o600))

	_, err := NewCodec().ReadMetadata(path)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestGenerateVariant_Downscales(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	testutil.WriteJPEG(t, src, 200, 100)

	dst := filepath.Join(dir, "out", "a", "50.jpg")
	res, err := NewCodec().GenerateVariant(src, dst, 50, "jpg", 80)
	require.NoError(t, err)
	require.Equal(t, 50, res.Width)
	require.Equal(t, 25, res.Height)
	require.Positive(t, res.BytesWritten)

	md, err := NewCodec().ReadMetadata(dst)
	require.NoError(t, err)
	require.Equal(t, 50, md.Width)

	_, err = os.Stat(dst + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestGenerateVariant_NeverUpscales(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	testutil.WriteJPEG(t, src, 60, 40)

	dst := filepath.Join(dir, "a", "60.png")
	res, err := NewCodec().GenerateVariant(src, dst, 500, "png", 80)
	require.NoError(t, err)
	require.Equal(t, 60, res.Width)
	require.Equal(t, 40, res.Height)

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	_, err = png.DecodeConfig(f)
	require.NoError(t, err)
}

func TestGenerateVariant_Gif(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	testutil.WriteJPEG(t, src, 40, 40)

	_, err := NewCodec().GenerateVariant(src, filepath.Join(dir, "20.gif"), 20, "gif", 80)
	require.NoError(t, err)
}

func TestGenerateVariant_UnknownFormat(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	testutil.WriteJPEG(t, src, 40, 40)

	dst := filepath.Join(dir, "20.avif")
	_, err := NewCodec().GenerateVariant(src, dst, 20, "avif", 80)
	require.Error(t, err)
	_, statErr := os.Stat(dst + ".tmp")
	require.True(t, os.IsNotExist(statErr))
}

func TestGenerateVariant_ReusesDecodedSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	testutil.WriteJPEG(t, src, 100, 100)

	c := NewCodec()
	_, err := c.GenerateVariant(src, filepath.Join(dir, "50.jpg"), 50, "jpg", 80)
	require.NoError(t, err)
	first := c.last.img
	_, err = c.GenerateVariant(src, filepath.Join(dir, "25.jpg"), 25, "jpg", 80)
	require.NoError(t, err)
	require.Same(t, first, c.last.img)
}

func TestFormatExposure(t *testing.T) {
	require.Equal(t, "1/250", formatExposure(1, 250))
	require.Equal(t, "1/125", formatExposure(10, 1250))
	require.Equal(t, "2", formatExposure(2, 1))
	require.Empty(t, formatExposure(0, 1))
}
