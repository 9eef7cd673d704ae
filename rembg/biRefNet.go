package rembg

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"slices"
	"strings"
	"time"

	"github.com/chaos-io/avatarkit/util"
	nhttp "github.com/chaos-io/avatarkit/util/http"
	"go.uber.org/zap"
)

const (
	uploadPath  = "/api/upload/image"
	promptPath  = "/api/prompt"
	historyPath = "/api/history/"
	viewPath    = "/api/view"

	classLoadImage  = "LoadImage"
	classLoadModel  = "LoadRembgByBiRefNetModel"
	defaultPollWait = 500 * time.Millisecond
)

//go:embed workflow.json
var workflowData []byte

var errNoOutput = errors.New("workflow finished without an output image")

// BiRefNetRemBG runs the BiRefNet family through a ComfyUI workflow:
// upload the image, queue the prompt, poll the history, fetch the output.
type BiRefNetRemBG struct {
	baseURL  string
	model    ModelInfo
	cli      nhttp.IClient
	pollWait time.Duration
}

func NewBiRefNetRemBG(baseURL string, model ModelInfo, cli nhttp.IClient) (*BiRefNetRemBG, error) {
	if model.Family != FamilyBiRefNet {
		return nil, fmt.Errorf("%w: %s is not a BiRefNet model", ErrUnknownModel, model.Name)
	}
	return &BiRefNetRemBG{
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		cli:      cli,
		pollWait: defaultPollWait,
	}, nil
}

// Remove ignores opts: the workflow carries its own post-processing.
func (b *BiRefNetRemBG) Remove(ctx context.Context, image []byte, _ Options) ([]byte, error) {
	uploaded, err := b.uploadImage(ctx, image)
	if err != nil {
		return nil, err
	}

	promptID, err := b.prompt(ctx, uploaded.Name)
	if err != nil {
		return nil, err
	}

	out, err := b.waitOutput(ctx, promptID)
	if err != nil {
		return nil, err
	}

	return b.view(ctx, out)
}

type uploadImageResp struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

/*
	curl -X POST "$BASE_URL/api/upload/image" \
	  -F "image=@my_image.png" \
	  -F "type=input" \
	  -F "overwrite=true"

{"name": "my_image1.png", "subfolder": "", "type": "input"}%
*/
func (b *BiRefNetRemBG) uploadImage(ctx context.Context, image []byte) (*uploadImageResp, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	// image 文件字段
	name := util.BytesMD5(image) + ".png"
	part, err := writer.CreateFormFile("image", name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("copy form file: %w", err)
	}

	// 其他字段
	_ = writer.WriteField("type", "input")
	_ = writer.WriteField("overwrite", "true")
	_ = writer.Close()

	resp := &uploadImageResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + uploadPath,
		Method:     "POST",
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	if resp.Name == "" {
		resp.Name = name
	}

	util.Logger.Debug("comfyui image uploaded", zap.String("name", resp.Name))
	return resp, nil
}

type promptResp struct {
	PromptID   string         `json:"prompt_id"`
	NodeErrors map[string]any `json:"node_errors"`
}

/*
	curl -X POST "$BASE_URL/api/prompt" \
	  -H "Content-Type: application/json" \
	  -d '{"prompt": '"$(cat workflow.json)"'}'
*/
func (b *BiRefNetRemBG) prompt(ctx context.Context, imageName string) (string, error) {
	wk, err := b.workflow(imageName)
	if err != nil {
		return "", err
	}

	resp := &promptResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + promptPath,
		Method:     "POST",
		Header:     map[string]string{"Content-Type": "application/json"},
		Body:       map[string]any{"prompt": wk},
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return "", fmt.Errorf("queue prompt: %w", err)
	}
	if len(resp.NodeErrors) > 0 {
		return "", fmt.Errorf("queue prompt: node errors %v", resp.NodeErrors)
	}
	if resp.PromptID == "" {
		return "", errors.New("queue prompt: empty prompt id")
	}
	return resp.PromptID, nil
}

// workflow 把上传的图片名和模型权重写进工作流
func (b *BiRefNetRemBG) workflow(imageName string) (map[string]map[string]any, error) {
	wk := map[string]map[string]any{}
	if err := json.Unmarshal(workflowData, &wk); err != nil {
		return nil, fmt.Errorf("unmarshal workflow data: %w", err)
	}

	for _, node := range wk {
		inputs, _ := node["inputs"].(map[string]any)
		if inputs == nil {
			continue
		}
		switch node["class_type"] {
		case classLoadImage:
			inputs["image"] = imageName
		case classLoadModel:
			inputs["model"] = b.model.Weights
		}
	}
	return wk, nil
}

type outputImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type historyEntry struct {
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
	Outputs map[string]struct {
		Images []outputImage `json:"images"`
	} `json:"outputs"`
}

// firstOutput 按节点 id 顺序取第一张 output 图片
func (h historyEntry) firstOutput() (outputImage, error) {
	nodes := make([]string, 0, len(h.Outputs))
	for id := range h.Outputs {
		nodes = append(nodes, id)
	}
	slices.Sort(nodes)

	for _, id := range nodes {
		for _, img := range h.Outputs[id].Images {
			if img.Type == "output" {
				return img, nil
			}
		}
	}
	return outputImage{}, errNoOutput
}

func (b *BiRefNetRemBG) waitOutput(ctx context.Context, promptID string) (outputImage, error) {
	ticker := time.NewTicker(b.pollWait)
	defer ticker.Stop()

	for {
		history := map[string]historyEntry{}
		reqParam := &nhttp.RequestParam{
			RequestURI: b.baseURL + historyPath + promptID,
			Method:     "GET",
			Response:   &history,
		}
		if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
			return outputImage{}, fmt.Errorf("poll history: %w", err)
		}

		if entry, ok := history[promptID]; ok {
			if entry.Status.StatusStr == "error" {
				return outputImage{}, fmt.Errorf("prompt %s failed", promptID)
			}
			if entry.Status.Completed {
				return entry.firstOutput()
			}
		}

		select {
		case <-ctx.Done():
			return outputImage{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *BiRefNetRemBG) view(ctx context.Context, img outputImage) ([]byte, error) {
	var out []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + viewPath,
		Method:     "GET",
		Query: map[string]string{
			"filename":  img.Filename,
			"subfolder": img.Subfolder,
			"type":      img.Type,
		},
		Response: &out,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("fetch output: %w", err)
	}
	return out, nil
}
