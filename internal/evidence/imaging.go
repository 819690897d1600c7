package evidence

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	stddraw "image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/attendsync/attendsync/internal/schema"
)

// ImageOptions bounds the stored size of evidence images.
type ImageOptions struct {
	// MaxEdge is the maximum length in pixels of the longer side.
	MaxEdge int
	// Quality is the JPEG quality (1-100).
	Quality int
	// MaxBytes caps the accepted input size. Zero means 20 MiB.
	MaxBytes int
	// MaxPixels caps width*height of the decoded image. Zero means 50 Mpx.
	MaxPixels int
}

// DefaultImageOptions keeps images at most 1200px on the long edge at
// JPEG quality 70.
func DefaultImageOptions() ImageOptions {
	return ImageOptions{MaxEdge: 1200, Quality: 70, MaxBytes: 20 << 20, MaxPixels: 50_000_000}
}

func (o ImageOptions) withDefaults() ImageOptions {
	d := DefaultImageOptions()
	if o.MaxEdge <= 0 {
		o.MaxEdge = d.MaxEdge
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = d.Quality
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = d.MaxBytes
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = d.MaxPixels
	}
	return o
}

// Compacted is a re-encoded evidence image.
type Compacted struct {
	JPEG   []byte
	Width  int
	Height int
}

// DataURL returns the image as an inline data URL.
func (c *Compacted) DataURL() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(c.JPEG)
}

// Compact decodes raw (JPEG, PNG, GIF, BMP or WebP), scales it so the longer
// edge fits opts.MaxEdge and re-encodes it as JPEG. Transparent pixels are
// flattened onto white.
func Compact(raw []byte, opts ImageOptions) (*Compacted, error) {
	opts = opts.withDefaults()
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty image", schema.ErrInvalidImage)
	}
	if len(raw) > opts.MaxBytes {
		return nil, fmt.Errorf("%w: image is %d bytes, limit %d", schema.ErrInvalidImage, len(raw), opts.MaxBytes)
	}

	// Compressed formats can claim huge dimensions in a few bytes; check
	// the header before allocating the bitmap.
	hdr, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: unable to decode: %v", schema.ErrInvalidImage, err)
	}
	if hdr.Width <= 0 || hdr.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", schema.ErrInvalidImage, hdr.Width, hdr.Height)
	}
	if int64(hdr.Width)*int64(hdr.Height) > int64(opts.MaxPixels) {
		return nil, fmt.Errorf("%w: image is %dx%d, limit %d pixels", schema.ErrInvalidImage, hdr.Width, hdr.Height, opts.MaxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: unable to decode: %v", schema.ErrInvalidImage, err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", schema.ErrInvalidImage, w, h)
	}

	tw, th := fit(w, h, opts.MaxEdge)
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	stddraw.Draw(dst, dst.Bounds(), image.White, image.Point{}, stddraw.Src)
	if tw == w && th == h {
		stddraw.Draw(dst, dst.Bounds(), src, b.Min, stddraw.Over)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("%w: unable to encode: %v", schema.ErrInvalidImage, err)
	}
	return &Compacted{JPEG: out.Bytes(), Width: tw, Height: th}, nil
}

// fit scales (w, h) down so the longer side is at most maxEdge.
func fit(w, h, maxEdge int) (int, int) {
	long := w
	if h > long {
		long = h
	}
	if long <= maxEdge {
		return w, h
	}
	if w >= h {
		nh := h * maxEdge / w
		if nh < 1 {
			nh = 1
		}
		return maxEdge, nh
	}
	nw := w * maxEdge / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxEdge
}
