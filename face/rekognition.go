package face

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"
	"github.com/disintegration/imaging"
)

const (
	errCodeAccessDenied     = "AccessDeniedException"
	errCodeInvalidParameter = "InvalidParameterException"
	errCodeImageTooLarge    = "ImageTooLargeException"

	// Rekognition rejects raw bytes above 5MB.
	maxRekognitionBytes = 5 * 1024 * 1024
	jpegQuality         = 90
)

var ErrInvalidCredentials = errors.New("invalid or missing AWS credentials")

// RekognitionAPI is the slice of the Rekognition client the detector needs.
type RekognitionAPI interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

type RekognitionDetector struct {
	api RekognitionAPI
}

// NewRekognitionDetector uses the AWS default credential chain.
func NewRekognitionDetector(ctx context.Context, region string) (*RekognitionDetector, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewRekognitionDetectorWithAPI(rekognition.NewFromConfig(awsCfg)), nil
}

func NewRekognitionDetectorWithAPI(api RekognitionAPI) *RekognitionDetector {
	return &RekognitionDetector{api: api}
}

func (d *RekognitionDetector) Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	data, err := encodeJPEG(img, maxRekognitionBytes)
	if err != nil {
		return nil, err
	}

	output, err := d.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: data},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		return nil, parseDetectError(err)
	}

	bounds := img.Bounds()
	boxes := make([]image.Rectangle, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		if detail.BoundingBox == nil {
			continue
		}
		box := toPixels(detail.BoundingBox, bounds)
		if !box.Empty() {
			boxes = append(boxes, box)
		}
	}
	return boxes, nil
}

// toPixels converts ratio boxes to pixels, clipped to bounds.
func toPixels(bb *types.BoundingBox, bounds image.Rectangle) image.Rectangle {
	w, h := float32(bounds.Dx()), float32(bounds.Dy())
	x0 := bounds.Min.X + int(aws.ToFloat32(bb.Left)*w)
	y0 := bounds.Min.Y + int(aws.ToFloat32(bb.Top)*h)
	x1 := x0 + int(aws.ToFloat32(bb.Width)*w)
	y1 := y0 + int(aws.ToFloat32(bb.Height)*h)
	return image.Rect(x0, y0, x1, y1).Intersect(bounds)
}

// encodeJPEG halves the image until its JPEG fits in limit bytes.
func encodeJPEG(img image.Image, limit int) ([]byte, error) {
	src := img
	if src.Bounds().Empty() {
		return nil, fmt.Errorf("encode jpeg: empty image %v", src.Bounds())
	}
	for {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		if buf.Len() <= limit {
			return buf.Bytes(), nil
		}
		// box ratios are scale independent
		b := src.Bounds()
		if b.Dx()/2 == 0 || b.Dy()/2 == 0 {
			return nil, fmt.Errorf("encode jpeg: %d bytes at %dx%d still over %d", buf.Len(), b.Dx(), b.Dy(), limit)
		}
		src = imaging.Resize(src, b.Dx()/2, 0, imaging.Lanczos)
	}
}

func parseDetectError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case errCodeAccessDenied:
			return fmt.Errorf("detect faces: %w", ErrInvalidCredentials)
		case errCodeInvalidParameter, errCodeImageTooLarge:
			return fmt.Errorf("detect faces: %s: %w", apiErr.ErrorMessage(), ErrNoFace)
		}
	}
	return fmt.Errorf("detect faces: %w", err)
}
