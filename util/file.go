package util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var (
	ErrNotAnImage   = errors.New("not an image")
	ErrDownloadSize = errors.New("download exceeds size limit")
)

// Format is an output encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// ParseFormat accepts "", "png" and "webp"; the empty string means PNG.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatPNG:
		return FormatPNG, nil
	case FormatWebP:
		return FormatWebP, nil
	}
	return "", fmt.Errorf("unsupported output format %q", s)
}

func (f Format) ContentType() string {
	if f == FormatWebP {
		return "image/webp"
	}
	return "image/png"
}

func (f Format) Ext() string {
	return "." + string(f)
}

// DecodeImage 解码图片字节并按 EXIF 方向摆正
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	return img, nil
}

// EncodeImage 编码为无损的 PNG 或 WebP
func EncodeImage(img image.Image, format Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Lossless: true})
	default:
		err = imaging.Encode(&buf, img, imaging.PNG)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// Transcode re-encodes image bytes when the requested format is not PNG.
func Transcode(data []byte, format Format) ([]byte, error) {
	if format == FormatPNG {
		return data, nil
	}
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return EncodeImage(img, format)
}

// Downloader fetches images over http(s).
type Downloader struct {
	client  *http.Client
	maxSize int64
}

func NewDownloader(timeout time.Duration, maxSize int64) *Downloader {
	return &Downloader{
		client:  &http.Client{Timeout: timeout},
		maxSize: maxSize,
	}
}

// DownloadImage 下载图片，返回原始字节
func (d *Downloader) DownloadImage(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%w: content type %q", ErrNotAnImage, ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > d.maxSize {
		return nil, ErrDownloadSize
	}
	return data, nil
}
