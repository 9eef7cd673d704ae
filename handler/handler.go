package handler

import (
	"context"
	"image"
	"net/http"
	"strings"

	"github.com/chaos-io/avatarkit/face"
	"github.com/chaos-io/avatarkit/rembg"
	"github.com/gin-gonic/gin"
)

const tempImagesPath = "/static/temp_images"

// Remover is the background-removal boundary, satisfied by *rembg.Service.
type Remover interface {
	Remove(ctx context.Context, model string, image []byte, opts rembg.Options) ([]byte, error)
}

// Store keeps processed images for later download.
type Store interface {
	Save(data []byte, ext string) (string, error)
	Path(name string) (string, error)
}

// Downloader fetches remote images.
type Downloader interface {
	DownloadImage(ctx context.Context, rawURL string) ([]byte, error)
}

type Options struct {
	MaxUploadSize int64
	AllowedPrefix string
	// PublicURL prefixes links to stored results.
	PublicURL string
}

type ImageHandler struct {
	remover    Remover
	detector   face.Detector
	store      Store
	downloader Downloader
	opts       Options
}

func NewImageHandler(remover Remover, detector face.Detector, store Store, downloader Downloader, opts Options) *ImageHandler {
	if opts.AllowedPrefix == "" {
		opts.AllowedPrefix = "image/"
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return &ImageHandler{
		remover:    remover,
		detector:   detector,
		store:      store,
		downloader: downloader,
		opts:       opts,
	}
}

// Register mounts the API routes and the stored-result route.
func (h *ImageHandler) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET(tempImagesPath+"/:name", h.TempImage)

	api := r.Group("/api/v1")
	{
		api.POST("/crop-round/", h.CropRound)
		api.POST("/crop-round-clamped/", h.CropRoundClamped)
		api.POST("/remove-bg/:model", h.RemoveBg)
		api.POST("/remove-bg-crop/:model", h.RemoveBgCrop)
		api.POST("/process-url/", h.ProcessURL)
		api.POST("/remove-bg-and-crop-round/", h.RemoveBgAndCropRound)
		api.POST("/detect-face/", h.DetectFace)
	}
}

// Root 服务信息
func (h *ImageHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "avatarkit portrait compositor",
		"endpoints": []string{
			"POST /api/v1/crop-round/",
			"POST /api/v1/crop-round-clamped/",
			"POST /api/v1/remove-bg/:model",
			"POST /api/v1/remove-bg-crop/:model",
			"POST /api/v1/process-url/",
			"POST /api/v1/remove-bg-and-crop-round/",
			"POST /api/v1/detect-face/",
			"GET " + tempImagesPath + "/:name",
		},
		"models": rembg.Models(),
	})
}

func (h *ImageHandler) TempImage(c *gin.Context) {
	path, err := h.store.Path(c.Param("name"))
	if err != nil {
		abort(c, err)
		return
	}
	c.File(path)
}

// faceBox is the JSON shape of a detected face.
type faceBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func toFaceBoxes(rects []image.Rectangle) []faceBox {
	out := make([]faceBox, len(rects))
	for i, r := range rects {
		out[i] = faceBox{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
	}
	return out
}
