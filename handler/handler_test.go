package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chaos-io/avatarkit/face"
	"github.com/chaos-io/avatarkit/portrait"
	"github.com/chaos-io/avatarkit/rembg"
	"github.com/chaos-io/avatarkit/storage"
	"github.com/chaos-io/avatarkit/util"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRemover struct {
	mock.Mock
}

func (m *mockRemover) Remove(ctx context.Context, model string, image []byte, opts rembg.Options) ([]byte, error) {
	args := m.Called(ctx, model, image, opts)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

type detectorFunc func(ctx context.Context, img image.Image) ([]image.Rectangle, error)

func (f detectorFunc) Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	return f(ctx, img)
}

func detectAt(boxes ...image.Rectangle) face.Detector {
	return detectorFunc(func(context.Context, image.Image) ([]image.Rectangle, error) {
		return boxes, nil
	})
}

type memStore struct {
	dir   string
	saved map[string][]byte
}

func (s *memStore) Save(data []byte, ext string) (string, error) {
	name := fmt.Sprintf("processed_%d%s", len(s.saved), ext)
	s.saved[name] = data
	return name, nil
}

func (s *memStore) Path(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", storage.ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

type stubDownloader struct {
	data []byte
	err  error
}

func (d stubDownloader) DownloadImage(context.Context, string) ([]byte, error) {
	return d.data, d.err
}

var testFace = image.Rect(100, 100, 200, 200)

func portraitPNG(t *testing.T, transparentBackground bool) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 300, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 300; x++ {
			c := color.NRGBA{R: 40, G: 90, B: 200, A: 255}
			if transparentBackground {
				c.A = 0
			}
			if image.Pt(x, y).In(testFace) {
				c = color.NRGBA{R: 230, G: 180, B: 150, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	data, err := util.EncodeImage(img, util.FormatPNG)
	require.NoError(t, err)
	return data
}

type fixture struct {
	router  *gin.Engine
	remover *mockRemover
	store   *memStore
}

func newFixture(t *testing.T, detector face.Detector, downloader Downloader, opts Options) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		router:  gin.New(),
		remover: &mockRemover{},
		store:   &memStore{dir: t.TempDir(), saved: map[string][]byte{}},
	}
	if opts.MaxUploadSize == 0 {
		opts.MaxUploadSize = 10 << 20
	}
	NewImageHandler(f.remover, detector, f.store, downloader, opts).Register(f.router)
	t.Cleanup(func() { f.remover.AssertExpectations(t) })
	return f
}

func uploadRequest(t *testing.T, target string, data []byte, contentType string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="face.png"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Detail
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) image.Image {
	t.Helper()
	img, err := util.DecodeImage(w.Body.Bytes())
	require.NoError(t, err)
	return img
}

func TestCropRound(t *testing.T) {
	f := newFixture(t, detectAt(testFace), nil, Options{})

	w := f.do(uploadRequest(t, "/api/v1/crop-round/", portraitPNG(t, false), "image/png"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	img := decodeBody(t, w)
	assert.Equal(t, image.Pt(512, 512), img.Bounds().Size())
	r, g, b, a := img.At(0, 0).RGBA()
	assert.Equal(t, [4]uint32{0xffff, 0xffff, 0xffff, 0xffff}, [4]uint32{r, g, b, a})
}

func TestCropRound_WebP(t *testing.T) {
	f := newFixture(t, detectAt(testFace), nil, Options{})

	w := f.do(uploadRequest(t, "/api/v1/crop-round/?format=webp", portraitPNG(t, false), "image/png"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/webp", w.Header().Get("Content-Type"))
	assert.Equal(t, image.Pt(512, 512), decodeBody(t, w).Bounds().Size())
}

func TestCropRound_NoFace(t *testing.T) {
	f := newFixture(t, face.None{}, nil, Options{})

	w := f.do(uploadRequest(t, "/api/v1/crop-round/?use_fallback=false", portraitPNG(t, false), "image/png"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no face found in the image", detail(t, w))

	w = f.do(uploadRequest(t, "/api/v1/crop-round/", portraitPNG(t, false), "image/png"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t, detectAt(testFace), nil, Options{MaxUploadSize: 64})

	w := f.do(uploadRequest(t, "/api/v1/crop-round/", []byte("plain text"), "text/plain"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, detail(t, w), "file must be an image")

	w = f.do(uploadRequest(t, "/api/v1/crop-round/", portraitPNG(t, false), "image/png"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = f.do(uploadRequest(t, "/api/v1/crop-round/?format=gif", []byte("x"), "image/png"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(uploadRequest(t, "/api/v1/crop-round/", []byte("not really a png"), "image/png"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(httptest.NewRequest(http.MethodPost, "/api/v1/crop-round/", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCropRoundClamped(t *testing.T) {
	f := newFixture(t, detectAt(testFace), nil, Options{})

	w := f.do(uploadRequest(t, "/api/v1/crop-round-clamped/", portraitPNG(t, false), "image/png"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	img := decodeBody(t, w)
	assert.Equal(t, image.Pt(200, 200), img.Bounds().Size())
	_, _, _, a := img.At(0, 0).RGBA()
	assert.Zero(t, a)

	w = f.do(uploadRequest(t, "/api/v1/crop-round-clamped/?radius_scale=abc", portraitPNG(t, false), "image/png"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, scale := range []string{"0", "-1", "-1.8", "NaN", "Inf"} {
		w = f.do(uploadRequest(t, "/api/v1/crop-round-clamped/?radius_scale="+scale, portraitPNG(t, false), "image/png"))
		assert.Equal(t, http.StatusBadRequest, w.Code, scale)
		assert.Contains(t, detail(t, w), "radius_scale", scale)
	}
}

func TestRemoveBg(t *testing.T) {
	f := newFixture(t, face.None{}, nil, Options{})
	src := portraitPNG(t, false)
	out := portraitPNG(t, true)

	f.remover.On("Remove", mock.Anything, "u2net", src, rembg.Options{AlphaMatting: true, PostProcessMask: true}).
		Return(out, nil).Once()

	w := f.do(uploadRequest(t, "/api/v1/remove-bg/u2net?alpha_matting=true", src, "image/png"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, out, w.Body.Bytes())
}

func TestRemoveBg_UnknownModel(t *testing.T) {
	f := newFixture(t, face.None{}, nil, Options{})

	w := f.do(uploadRequest(t, "/api/v1/remove-bg/magic", portraitPNG(t, false), "image/png"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, detail(t, w), "available models")
	assert.Contains(t, detail(t, w), "birefnet-general")
}

func TestRemoveBg_BackendErrors(t *testing.T) {
	f := newFixture(t, face.None{}, nil, Options{})
	src := portraitPNG(t, false)

	f.remover.On("Remove", mock.Anything, "sam", src, rembg.DefaultOptions()).Return(nil, rembg.ErrBusy).Once()
	w := f.do(uploadRequest(t, "/api/v1/remove-bg/sam", src, "image/png"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	f.remover.On("Remove", mock.Anything, "silueta", src, rembg.DefaultOptions()).Return(nil, errors.New("backend exploded")).Once()
	w = f.do(uploadRequest(t, "/api/v1/remove-bg/silueta", src, "image/png"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, detail(t, w), "backend exploded")
}

func TestRemoveBgCrop(t *testing.T) {
	f := newFixture(t, detectAt(testFace), nil, Options{})
	src := portraitPNG(t, false)

	f.remover.On("Remove", mock.Anything, "birefnet-portrait", src, rembg.DefaultOptions()).
		Return(portraitPNG(t, true), nil).Once()

	w := f.do(uploadRequest(t, "/api/v1/remove-bg-crop/birefnet-portrait", src, "image/png"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, image.Pt(512, 512), decodeBody(t, w).Bounds().Size())
}

func TestRemoveBgCrop_NoFace(t *testing.T) {
	f := newFixture(t, face.None{}, nil, Options{})
	src := portraitPNG(t, false)

	f.remover.On("Remove", mock.Anything, "u2net", src, rembg.DefaultOptions()).
		Return(portraitPNG(t, true), nil).Maybe()

	w := f.do(uploadRequest(t, "/api/v1/remove-bg-crop/u2net", src, "image/png"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRemoveBgAndCropRound(t *testing.T) {
	f := newFixture(t, detectAt(testFace), nil, Options{})
	src := portraitPNG(t, false)

	f.remover.On("Remove", mock.Anything, string(rembg.DefaultModel), src, rembg.DefaultOptions()).
		Return(portraitPNG(t, true), nil).Once()

	w := f.do(uploadRequest(t, "/api/v1/remove-bg-and-crop-round/?radius_scale=0.5&vertical_bias=0.5", src, "image/png"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// radius 50, margin 15, centered on (150,150)
	img := decodeBody(t, w)
	assert.Equal(t, image.Pt(130, 130), img.Bounds().Size())
	_, _, _, a := img.At(0, 0).RGBA()
	assert.Zero(t, a)
	_, _, _, a = img.At(65, 65).RGBA()
	assert.Equal(t, uint32(0xffff), a)

	w = f.do(uploadRequest(t, "/api/v1/remove-bg-and-crop-round/?model=nope", src, "image/png"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveBgAndCropRound_BadTuning(t *testing.T) {
	f := newFixture(t, detectAt(testFace), nil, Options{})
	src := portraitPNG(t, false)

	tests := []struct {
		query string
		param string
	}{
		{"radius_scale=-1.8", "radius_scale"},
		{"radius_scale=0", "radius_scale"},
		{"vertical_bias=-0.25", "vertical_bias"},
		{"vertical_bias=1.5", "vertical_bias"},
		{"vertical_bias=NaN", "vertical_bias"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := f.do(uploadRequest(t, "/api/v1/remove-bg-and-crop-round/?"+tt.query, src, "image/png"))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, detail(t, w), tt.param)
		})
	}
	f.remover.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessURL(t *testing.T) {
	src := portraitPNG(t, false)
	f := newFixture(t, face.None{}, stubDownloader{data: src}, Options{})
	out := portraitPNG(t, true)

	f.remover.On("Remove", mock.Anything, "birefnet-general", src, rembg.DefaultOptions()).Return(out, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process-url/",
		strings.NewReader(`{"image_url": "https://cdn.example.com/me.jpg"}`))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp processURLResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "http://example.com/static/temp_images/processed_0.png", resp.ProcessedImageURL)
	assert.Equal(t, "https://cdn.example.com/me.jpg", resp.OriginalImageURL)
	assert.Equal(t, "birefnet-general", resp.ModelUsed)
	assert.NotEmpty(t, resp.ProcessedAt)
	assert.Equal(t, out, f.store.saved["processed_0.png"])
}

func TestProcessURL_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		downloader Downloader
		status     int
	}{
		{"bad json", `{`, stubDownloader{}, http.StatusBadRequest},
		{"missing url", `{}`, stubDownloader{}, http.StatusBadRequest},
		{"not http", `{"image_url": "ftp://x/y.png"}`, stubDownloader{}, http.StatusBadRequest},
		{"unknown model", `{"image_url": "http://x/y.png", "model": "nope"}`, stubDownloader{}, http.StatusBadRequest},
		{"download fails", `{"image_url": "http://x/y.png"}`, stubDownloader{err: errors.New("HTTP 404")}, http.StatusBadRequest},
		{"not an image", `{"image_url": "http://x/y.png"}`, stubDownloader{err: util.ErrNotAnImage}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, face.None{}, tt.downloader, Options{})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/process-url/", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := f.do(req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestDetectFace(t *testing.T) {
	small := image.Rect(10, 10, 30, 30)
	f := newFixture(t, detectAt(small, testFace), nil, Options{})
	src := portraitPNG(t, false)

	w := f.do(uploadRequest(t, "/api/v1/detect-face/", src, "image/png"))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Count int       `json:"count"`
		Faces []faceBox `json:"faces"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, faceBox{X: 100, Y: 100, W: 100, H: 100}, resp.Faces[1])

	w = f.do(uploadRequest(t, "/api/v1/detect-face/?annotate=true", src, "image/png"))
	require.Equal(t, http.StatusOK, w.Code)
	r, g, _, _ := decodeBody(t, w).At(100, 150).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Zero(t, g)
}

func TestDetectFace_AnnotateWithoutFace(t *testing.T) {
	f := newFixture(t, face.None{}, nil, Options{})
	w := f.do(uploadRequest(t, "/api/v1/detect-face/?annotate=true", portraitPNG(t, false), "image/png"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTempImage(t *testing.T) {
	f := newFixture(t, face.None{}, nil, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(f.store.dir, "processed_a.png"), []byte("png"), 0o644))

	w := f.do(httptest.NewRequest(http.MethodGet, "/static/temp_images/processed_a.png", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png", w.Body.String())

	w = f.do(httptest.NewRequest(http.MethodGet, "/static/temp_images/..", nil))
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestRoot(t *testing.T) {
	f := newFixture(t, face.None{}, nil, Options{})
	w := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Models []string `json:"models"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Models, 14)
}

func TestStatusOf(t *testing.T) {
	geom := &portrait.Error{Policy: portrait.PolicyClamped, Op: "shrink", Err: portrait.ErrInvalidGeometry}
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("crop: %w", geom), http.StatusUnprocessableEntity},
		{portrait.ErrUnsupportedColorMode, http.StatusBadRequest},
		{util.ErrNotAnImage, http.StatusBadRequest},
		{face.ErrNoFace, http.StatusNotFound},
		{rembg.ErrUnknownModel, http.StatusBadRequest},
		{rembg.ErrBusy, http.StatusServiceUnavailable},
		{errTooLarge, http.StatusRequestEntityTooLarge},
		{errDownload, http.StatusBadRequest},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusOf(tt.err), tt.err.Error())
	}
}
