package handler

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chaos-io/avatarkit/face"
	"github.com/chaos-io/avatarkit/portrait"
	"github.com/chaos-io/avatarkit/rembg"
	"github.com/chaos-io/avatarkit/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// upload is a validated multipart image.
type upload struct {
	name   string
	data   []byte
	format util.Format
}

// readUpload 读取 multipart 的 file 字段并校验类型和大小
func (h *ImageHandler) readUpload(c *gin.Context) (*upload, error) {
	format, err := util.ParseFormat(c.Query("format"))
	if err != nil {
		return nil, badRequest("%v", err)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return nil, badRequest("missing file: %v", err)
	}
	if ct := fh.Header.Get("Content-Type"); !strings.HasPrefix(ct, h.opts.AllowedPrefix) {
		return nil, badRequest("file must be an image, got %q", ct)
	}
	if h.opts.MaxUploadSize > 0 && fh.Size > h.opts.MaxUploadSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", errTooLarge, fh.Size, h.opts.MaxUploadSize)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	util.Logger.Debug("upload received",
		zap.String("file", fh.Filename),
		zap.Int("size", len(data)),
		zap.String("format", string(format)))
	return &upload{name: fh.Filename, data: data, format: format}, nil
}

func queryBool(c *gin.Context, key string, def bool) (bool, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, badRequest("%s must be a boolean", key)
	}
	return b, nil
}

func queryFloat(c *gin.Context, key string, def float64) (float64, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, badRequest("%s must be a number", key)
	}
	return f, nil
}

// queryScale 读取 radius_scale，必须大于 0
func queryScale(c *gin.Context, def float64) (float64, error) {
	f, err := queryFloat(c, "radius_scale", def)
	if err != nil {
		return 0, err
	}
	if !(f > 0) || math.IsInf(f, 0) {
		return 0, badRequest("radius_scale must be greater than 0")
	}
	return f, nil
}

// queryBias 读取 vertical_bias，取值范围 [0, 1]
func queryBias(c *gin.Context, def float64) (float64, error) {
	f, err := queryFloat(c, "vertical_bias", def)
	if err != nil {
		return 0, err
	}
	if !(f >= 0 && f <= 1) {
		return 0, badRequest("vertical_bias must be between 0 and 1")
	}
	return f, nil
}

func writeImage(c *gin.Context, img image.Image, format util.Format) {
	data, err := util.EncodeImage(img, format)
	if err != nil {
		abort(c, err)
		return
	}
	c.Data(http.StatusOK, format.ContentType(), data)
}

// CropRound 以人脸为中心裁剪圆形头像（白底）
func (h *ImageHandler) CropRound(c *gin.Context) {
	up, err := h.readUpload(c)
	if err != nil {
		abort(c, err)
		return
	}
	useFallback, err := queryBool(c, "use_fallback", true)
	if err != nil {
		abort(c, err)
		return
	}

	img, err := util.DecodeImage(up.data)
	if err != nil {
		abort(c, err)
		return
	}
	box, err := face.Locate(c.Request.Context(), h.detector, img, useFallback)
	if err != nil {
		abort(c, err)
		return
	}

	out, err := portrait.Round(img, box, portrait.DefaultRoundOptions())
	if err != nil {
		abort(c, err)
		return
	}
	writeImage(c, out, up.format)
}

// CropRoundClamped 圆形裁剪，半径收缩到图像内，保留透明度
func (h *ImageHandler) CropRoundClamped(c *gin.Context) {
	up, err := h.readUpload(c)
	if err != nil {
		abort(c, err)
		return
	}
	opts := portrait.DefaultClampedOptions()
	if opts.RadiusScale, err = queryScale(c, opts.RadiusScale); err != nil {
		abort(c, err)
		return
	}
	useFallback, err := queryBool(c, "use_fallback", true)
	if err != nil {
		abort(c, err)
		return
	}

	img, err := util.DecodeImage(up.data)
	if err != nil {
		abort(c, err)
		return
	}
	box, err := face.Locate(c.Request.Context(), h.detector, img, useFallback)
	if err != nil {
		abort(c, err)
		return
	}

	out, err := portrait.Clamped(img, box, opts)
	if err != nil {
		abort(c, err)
		return
	}
	writeImage(c, out, up.format)
}

func removeOptions(c *gin.Context) (rembg.Options, error) {
	opts := rembg.DefaultOptions()
	var err error
	if opts.AlphaMatting, err = queryBool(c, "alpha_matting", opts.AlphaMatting); err != nil {
		return opts, err
	}
	if opts.PostProcessMask, err = queryBool(c, "post_process_mask", opts.PostProcessMask); err != nil {
		return opts, err
	}
	return opts, nil
}

// RemoveBg 去除背景，返回带透明通道的图片
func (h *ImageHandler) RemoveBg(c *gin.Context) {
	model := c.Param("model")
	if _, err := rembg.LookupModel(model); err != nil {
		abort(c, err)
		return
	}
	up, err := h.readUpload(c)
	if err != nil {
		abort(c, err)
		return
	}
	opts, err := removeOptions(c)
	if err != nil {
		abort(c, err)
		return
	}

	out, err := h.remover.Remove(c.Request.Context(), model, up.data, opts)
	if err != nil {
		abort(c, err)
		return
	}
	out, err = util.Transcode(out, up.format)
	if err != nil {
		abort(c, err)
		return
	}
	c.Data(http.StatusOK, up.format.ContentType(), out)
}

// removeAndLocate runs background removal and face detection on the same
// upload concurrently. Detection always sees the original pixels.
func (h *ImageHandler) removeAndLocate(c *gin.Context, model string, up *upload) (image.Image, image.Rectangle, error) {
	src, err := util.DecodeImage(up.data)
	if err != nil {
		return nil, image.Rectangle{}, err
	}

	var (
		removed image.Image
		box     image.Rectangle
	)
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		box, err = face.Locate(ctx, h.detector, src, false)
		return err
	})
	g.Go(func() error {
		out, err := h.remover.Remove(ctx, model, up.data, rembg.DefaultOptions())
		if err != nil {
			return err
		}
		removed, err = util.DecodeImage(out)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, image.Rectangle{}, err
	}
	return removed, box, nil
}

// RemoveBgCrop 去背景后按人脸裁剪圆形头像
func (h *ImageHandler) RemoveBgCrop(c *gin.Context) {
	model := c.Param("model")
	if _, err := rembg.LookupModel(model); err != nil {
		abort(c, err)
		return
	}
	up, err := h.readUpload(c)
	if err != nil {
		abort(c, err)
		return
	}

	img, box, err := h.removeAndLocate(c, model, up)
	if err != nil {
		abort(c, err)
		return
	}
	out, err := portrait.Round(img, box, portrait.DefaultRoundOptions())
	if err != nil {
		abort(c, err)
		return
	}
	writeImage(c, out, up.format)
}

// RemoveBgAndCropRound 旧接口：去背景后生成带椭圆透明边的构图
func (h *ImageHandler) RemoveBgAndCropRound(c *gin.Context) {
	model := c.DefaultQuery("model", string(rembg.DefaultModel))
	if _, err := rembg.LookupModel(model); err != nil {
		abort(c, err)
		return
	}
	up, err := h.readUpload(c)
	if err != nil {
		abort(c, err)
		return
	}
	opts := portrait.DefaultComposedOptions()
	if opts.RadiusScale, err = queryScale(c, opts.RadiusScale); err != nil {
		abort(c, err)
		return
	}
	if opts.VerticalBias, err = queryBias(c, opts.VerticalBias); err != nil {
		abort(c, err)
		return
	}

	img, box, err := h.removeAndLocate(c, model, up)
	if err != nil {
		abort(c, err)
		return
	}
	out, err := portrait.Composed(img, box, opts)
	if err != nil {
		abort(c, err)
		return
	}
	writeImage(c, out, up.format)
}

type processURLRequest struct {
	ImageURL string `json:"image_url" binding:"required"`
	Model    string `json:"model"`
}

type processURLResponse struct {
	ProcessedImageURL string `json:"processed_image_url"`
	OriginalImageURL  string `json:"original_image_url"`
	ModelUsed         string `json:"model_used"`
	ProcessedAt       string `json:"processed_at"`
}

// ProcessURL 下载远程图片，去背景后暂存并返回访问链接
func (h *ImageHandler) ProcessURL(c *gin.Context) {
	var req processURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, badRequest("invalid request body: %v", err))
		return
	}
	if req.Model == "" {
		req.Model = string(rembg.DefaultModel)
	}
	if _, err := rembg.LookupModel(req.Model); err != nil {
		abort(c, err)
		return
	}
	if u, err := url.Parse(req.ImageURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		abort(c, badRequest("image_url must be an http(s) URL"))
		return
	}

	ctx := c.Request.Context()
	data, err := h.downloader.DownloadImage(ctx, req.ImageURL)
	if err != nil {
		if !errors.Is(err, util.ErrNotAnImage) && !errors.Is(err, util.ErrDownloadSize) {
			err = fmt.Errorf("%w: %v", errDownload, err)
		}
		abort(c, err)
		return
	}

	out, err := h.remover.Remove(ctx, req.Model, data, rembg.DefaultOptions())
	if err != nil {
		abort(c, err)
		return
	}
	name, err := h.store.Save(out, util.FormatPNG.Ext())
	if err != nil {
		abort(c, err)
		return
	}

	util.Logger.Info("url processed",
		zap.String("url", req.ImageURL),
		zap.String("model", req.Model),
		zap.String("file", name))
	c.JSON(http.StatusOK, processURLResponse{
		ProcessedImageURL: h.publicURL(c) + tempImagesPath + "/" + name,
		OriginalImageURL:  req.ImageURL,
		ModelUsed:         req.Model,
		ProcessedAt:       time.Now().Format(time.RFC3339),
	})
}

func (h *ImageHandler) publicURL(c *gin.Context) string {
	if h.opts.PublicURL != "" {
		return h.opts.PublicURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if p := c.GetHeader("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + c.Request.Host
}

// DetectFace 返回检测到的人脸框，annotate=true 时返回标注最大人脸的图片
func (h *ImageHandler) DetectFace(c *gin.Context) {
	up, err := h.readUpload(c)
	if err != nil {
		abort(c, err)
		return
	}
	annotate, err := queryBool(c, "annotate", false)
	if err != nil {
		abort(c, err)
		return
	}

	img, err := util.DecodeImage(up.data)
	if err != nil {
		abort(c, err)
		return
	}
	boxes, err := h.detector.Detect(c.Request.Context(), img)
	if err != nil {
		abort(c, err)
		return
	}

	if !annotate {
		c.JSON(http.StatusOK, gin.H{
			"count": len(boxes),
			"faces": toFaceBoxes(boxes),
		})
		return
	}

	box, err := face.Largest(boxes)
	if err != nil {
		abort(c, err)
		return
	}
	writeImage(c, portrait.DrawFaceBox(img, box), up.format)
}
