//go:build gocv

package face

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/chaos-io/avatarkit/util"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// CascadeDetector runs a Haar cascade in several passes and stops at the
// first one that finds a face.
type CascadeDetector struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

func NewCascadeDetector(path string) (*CascadeDetector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		_ = classifier.Close()
		return nil, fmt.Errorf("load cascade %q failed", path)
	}
	return &CascadeDetector{classifier: classifier}, nil
}

func (d *CascadeDetector) Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("image to mat: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, pass := range cascadePasses() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rects := d.classifier.DetectMultiScaleWithParams(gray, pass.scale, pass.minNeighbors, 0,
			image.Pt(minFaceSize, minFaceSize), image.Pt(maxFaceSize, maxFaceSize))
		if len(rects) > 0 {
			util.Logger.Debug("cascade found faces",
				zap.Float64("scale", pass.scale),
				zap.Int("min_neighbors", pass.minNeighbors),
				zap.Int("count", len(rects)))
			b := img.Bounds()
			for i := range rects {
				rects[i] = rects[i].Add(b.Min)
			}
			return rects, nil
		}
	}
	return nil, nil
}

func (d *CascadeDetector) Close() error {
	return d.classifier.Close()
}
