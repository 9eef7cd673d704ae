package main

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/chaos-io/avatarkit/portrait"
	"github.com/chaos-io/avatarkit/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestImage(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 120, 90))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 200, 255
	}
	img.SetNRGBA(60, 45, color.NRGBA{B: 255, A: 255})
	data, err := util.EncodeImage(img, util.FormatPNG)
	require.NoError(t, err)
	path := filepath.Join(dir, "in.png")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRunCrop(t *testing.T) {
	dir := t.TempDir()
	in := writeTestImage(t, dir)

	tests := []struct {
		args []string
		size image.Point
	}{
		{[]string{"-policy", "round"}, image.Pt(512, 512)},
		{[]string{"-policy", "clamped", "-face", "40,30,40,30"}, image.Pt(80, 80)},
		{[]string{"-policy", "composed", "-face", "40,30,40,30", "-radius-scale", "0.5"}, image.Pt(52, 52)},
	}
	for _, tt := range tests {
		t.Run(tt.args[1], func(t *testing.T) {
			out := filepath.Join(dir, tt.args[1]+".webp")
			require.NoError(t, runCrop(append([]string{"-in", in, "-out", out}, tt.args...)))

			data, err := os.ReadFile(out)
			require.NoError(t, err)
			img, err := util.DecodeImage(data)
			require.NoError(t, err)
			assert.Equal(t, tt.size, img.Bounds().Size())
		})
	}
}

func TestRunCrop_BadInput(t *testing.T) {
	dir := t.TempDir()
	in := writeTestImage(t, dir)

	assert.Error(t, runCrop(nil))
	assert.Error(t, runCrop([]string{"-in", in, "-out", filepath.Join(dir, "x.gif")}))
	assert.Error(t, runCrop([]string{"-in", in, "-out", filepath.Join(dir, "x.png"), "-policy", "square"}))
	assert.Error(t, runCrop([]string{"-in", in, "-out", filepath.Join(dir, "x.png"), "-face", "1,2"}))

	for _, args := range [][]string{
		{"-radius-scale", "-1.8"},
		{"-radius-scale", "0"},
		{"-radius-scale", "+Inf"},
		{"-vertical-bias", "-0.1"},
		{"-vertical-bias", "1.5"},
	} {
		out := filepath.Join(dir, "tuned.png")
		err := runCrop(append([]string{"-in", in, "-out", out, "-policy", "composed"}, args...))
		assert.Error(t, err, args)
		assert.NoFileExists(t, out)
	}
}

func TestCompose_RejectsBadTuning(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 120, 90))
	box := image.Rect(40, 30, 80, 60)
	neg, over := -1.0, 2.0

	for _, p := range []portrait.Policy{portrait.PolicyRound, portrait.PolicyClamped, portrait.PolicyComposed} {
		_, err := compose(p, img, box, tuning{radiusScale: &neg})
		assert.ErrorContains(t, err, "radius scale", p.String())
		_, err = compose(p, img, box, tuning{verticalBias: &over})
		assert.ErrorContains(t, err, "vertical bias", p.String())
	}

	out, err := compose(portrait.PolicyClamped, img, box, tuning{})
	require.NoError(t, err)
	assert.Equal(t, image.Pt(80, 80), out.Bounds().Size())
}

func TestParseBox(t *testing.T) {
	r, err := parseBox("10,20,30,40")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(10, 20, 40, 60), r)
}
