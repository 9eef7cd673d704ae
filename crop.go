package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chaos-io/avatarkit/face"
	"github.com/chaos-io/avatarkit/portrait"
	"github.com/chaos-io/avatarkit/util"
)

// runCrop 离线裁剪: avatarkit crop -in a.png -face 10,20,100,100 -policy round -out b.png
func runCrop(args []string) error {
	fs := flag.NewFlagSet("crop", flag.ContinueOnError)
	in := fs.String("in", "", "input image path or http(s) URL")
	out := fs.String("out", "", "output path; the extension picks png or webp")
	policy := fs.String("policy", "round", "round | clamped | composed")
	box := fs.String("face", "", "face box x,y,w,h; empty uses the centered fallback")
	scale := fs.Float64("radius-scale", 0, "override the policy radius scale (> 0)")
	bias := fs.Float64("vertical-bias", 0, "override the policy vertical bias (0..1)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		fs.Usage()
		return errors.New("-in and -out are required")
	}

	var t tuning
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "radius-scale":
			t.radiusScale = scale
		case "vertical-bias":
			t.verticalBias = bias
		}
	})
	if err := t.validate(); err != nil {
		return err
	}

	p, err := portrait.ParsePolicy(*policy)
	if err != nil {
		return err
	}
	format, err := util.ParseFormat(strings.TrimPrefix(filepath.Ext(*out), "."))
	if err != nil {
		return err
	}

	img, err := loadImage(*in)
	if err != nil {
		return err
	}

	faceBox := face.Fallback(img.Bounds())
	if *box != "" {
		if faceBox, err = parseBox(*box); err != nil {
			return err
		}
	}

	result, err := compose(p, img, faceBox, t)
	if err != nil {
		return err
	}
	data, err := util.EncodeImage(result, format)
	if err != nil {
		return err
	}
	return os.WriteFile(*out, data, 0o644)
}

// tuning holds the flags the user actually set; nil keeps the policy default.
type tuning struct {
	radiusScale  *float64
	verticalBias *float64
}

func (t tuning) validate() error {
	if t.radiusScale != nil && (!(*t.radiusScale > 0) || math.IsInf(*t.radiusScale, 0)) {
		return fmt.Errorf("radius scale must be greater than 0, got %v", *t.radiusScale)
	}
	if t.verticalBias != nil && !(*t.verticalBias >= 0 && *t.verticalBias <= 1) {
		return fmt.Errorf("vertical bias must be between 0 and 1, got %v", *t.verticalBias)
	}
	return nil
}

func compose(p portrait.Policy, img image.Image, box image.Rectangle, t tuning) (image.Image, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	switch p {
	case portrait.PolicyClamped:
		opts := portrait.DefaultClampedOptions()
		if t.radiusScale != nil {
			opts.RadiusScale = *t.radiusScale
		}
		return portrait.Clamped(img, box, opts)
	case portrait.PolicyComposed:
		opts := portrait.DefaultComposedOptions()
		if t.radiusScale != nil {
			opts.RadiusScale = *t.radiusScale
		}
		if t.verticalBias != nil {
			opts.VerticalBias = *t.verticalBias
		}
		return portrait.Composed(img, box, opts)
	default:
		opts := portrait.DefaultRoundOptions()
		if t.radiusScale != nil {
			opts.RadiusScale = *t.radiusScale
		}
		if t.verticalBias != nil {
			opts.VerticalBias = *t.verticalBias
		}
		return portrait.Round(img, box, opts)
	}
}

// Helper: 下载或打开图片
func loadImage(path string) (image.Image, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		data, err = util.NewDownloader(30*time.Second, 50<<20).DownloadImage(ctx, path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return util.DecodeImage(data)
}

func parseBox(s string) (image.Rectangle, error) {
	var x, y, w, h int
	if _, err := fmt.Sscanf(s, "%d,%d,%d,%d", &x, &y, &w, &h); err != nil {
		return image.Rectangle{}, fmt.Errorf("face box %q: want x,y,w,h", s)
	}
	return image.Rect(x, y, x+w, y+h), nil
}
