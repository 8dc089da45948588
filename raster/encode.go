package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/render"
	"github.com/mapcloud/tileserver/tiletype"
)

// jpegQuality and webpQuality target a mid-high encoder quality; png
// is lossless and uses the stdlib encoder's BestCompression level.
const (
	jpegQuality = 85
	webpQuality = 85
)

// Encode renders result's RGBA pixels to the wire bytes for format,
// returning the bytes and the Content-Type to advertise. Alpha is
// preserved for PNG/WebP; JPEG has no alpha channel, so the image is
// composited onto opaque white first.
func Encode(result *render.Result, format tiletype.Format) ([]byte, string, error) {
	img := toRGBA(result)

	var buf bytes.Buffer
	var err error
	switch format {
	case tiletype.FormatPNG:
		enc := &png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, img)
	case tiletype.FormatJPG:
		err = jpeg.Encode(&buf, compositeOnWhite(img), &jpeg.Options{Quality: jpegQuality})
	case tiletype.FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: webpQuality})
	default:
		return nil, "", apperr.New(apperr.KindUserInput, "unsupported encode format")
	}
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindRenderFailed, "encoding rendered image", err)
	}
	return buf.Bytes(), format.ContentType(), nil
}

func toRGBA(result *render.Result) *image.RGBA {
	img := &image.RGBA{
		Pix:    result.RGBA,
		Stride: result.Width * 4,
		Rect:   image.Rect(0, 0, result.Width, result.Height),
	}
	return img
}

// compositeOnWhite flattens src onto an opaque white background using
// x/image/draw's Porter-Duff Over operator, since JPEG carries no
// alpha channel.
func compositeOnWhite(src *image.RGBA) image.Image {
	dst := image.NewRGBA(src.Rect)
	draw.Draw(dst, dst.Rect, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Rect, src, src.Rect.Min, draw.Over)
	return dst
}
