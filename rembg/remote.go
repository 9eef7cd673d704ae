package rembg

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"

	nhttp "github.com/chaos-io/avatarkit/util/http"
)

const removePath = "/api/remove"

// ServerRemBG talks to a `rembg s` inference server.
type ServerRemBG struct {
	baseURL string
	model   Model
	cli     nhttp.IClient
}

func NewServerRemBG(baseURL string, model Model, cli nhttp.IClient) *ServerRemBG {
	return &ServerRemBG{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		cli:     cli,
	}
}

/*
	curl -X POST "$BASE_URL/api/remove" \
	  -F "file=@my_image.png" \
	  -F "model=birefnet-general" \
	  -F "a=false" \
	  -F "ppm=true"
*/
func (s *ServerRemBG) Remove(ctx context.Context, image []byte, opts Options) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	_ = writer.WriteField("model", string(s.model))
	_ = writer.WriteField("a", strconv.FormatBool(opts.AlphaMatting))
	_ = writer.WriteField("ppm", strconv.FormatBool(opts.PostProcessMask))
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	var out []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: s.baseURL + removePath,
		Method:     "POST",
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   &out,
	}
	if err := s.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("remove background with %s: %w", s.model, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("remove background with %s: empty response", s.model)
	}
	return out, nil
}
