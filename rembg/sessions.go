package rembg

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/chaos-io/avatarkit/util"
	nhttp "github.com/chaos-io/avatarkit/util/http"
	"go.uber.org/zap"
)

const DefaultSessionCapacity = 8

// Factory opens a Remover for one model.
type Factory func(ctx context.Context, model ModelInfo) (Remover, error)

// ServerFactory routes every model to a `rembg s` server.
func ServerFactory(baseURL string, cli nhttp.IClient) Factory {
	return func(_ context.Context, model ModelInfo) (Remover, error) {
		return NewServerRemBG(baseURL, model.Name, cli), nil
	}
}

// ComfyFactory sends the BiRefNet family to ComfyUI and everything else to
// the rembg server.
func ComfyFactory(serverURL, comfyURL string, cli nhttp.IClient) Factory {
	server := ServerFactory(serverURL, cli)
	return func(ctx context.Context, model ModelInfo) (Remover, error) {
		if model.Family == FamilyBiRefNet {
			return NewBiRefNetRemBG(comfyURL, model, cli)
		}
		return server(ctx, model)
	}
}

type session struct {
	model   Model
	remover Remover
}

// Sessions keeps at most capacity removers alive, evicting the least
// recently used one. Safe for concurrent use.
type Sessions struct {
	mu       sync.Mutex
	capacity int
	factory  Factory
	order    *list.List
	items    map[Model]*list.Element
}

func NewSessions(capacity int, factory Factory) *Sessions {
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	return &Sessions{
		capacity: capacity,
		factory:  factory,
		order:    list.New(),
		items:    make(map[Model]*list.Element, capacity),
	}
}

// Get returns the session for name, opening it on first use.
func (s *Sessions) Get(ctx context.Context, name string) (Remover, error) {
	info, err := LookupModel(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[info.Name]; ok {
		s.order.MoveToFront(el)
		return el.Value.(*session).remover, nil
	}

	remover, err := s.factory(ctx, info)
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", info.Name, err)
	}
	s.items[info.Name] = s.order.PushFront(&session{model: info.Name, remover: remover})
	util.Logger.Info("rembg session opened", zap.String("model", string(info.Name)))

	for s.order.Len() > s.capacity {
		oldest := s.order.Back()
		evicted := s.order.Remove(oldest).(*session)
		delete(s.items, evicted.model)
		util.Logger.Info("rembg session evicted", zap.String("model", string(evicted.model)))
	}
	return remover, nil
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Contains reports whether the model has a live session without touching
// its recency.
func (s *Sessions) Contains(model Model) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[model]
	return ok
}
