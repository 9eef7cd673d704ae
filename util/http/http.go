package http

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/http.go -package=mocks . IClient
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam describes one call. Body may be nil, an io.Reader, []byte or
// any JSON-marshalable value. Response may be nil, a *[]byte receiving the
// raw body, or a pointer the JSON body is decoded into.
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Query      map[string]string
	Body       interface{}
	Response   interface{}

	// ResponseHeader, when set, receives the response headers.
	ResponseHeader *map[string]string

	Timeout time.Duration
}
