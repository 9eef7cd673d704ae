package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chaos-io/avatarkit/util"
	"github.com/robfig/cron/v3"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

const filePrefix = "processed_"

var ErrInvalidName = errors.New("invalid file name")

// TempStore keeps processed images on disk for a limited time.
type TempStore struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

func NewTempStore(dir string, ttl time.Duration) (*TempStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &TempStore{dir: dir, ttl: ttl, now: time.Now}, nil
}

func (s *TempStore) Dir() string {
	return s.dir
}

// Save writes data as processed_<timestamp>_<ksuid><ext> and returns the
// file name.
func (s *TempStore) Save(data []byte, ext string) (string, error) {
	name := fmt.Sprintf("%s%s_%s%s", filePrefix, s.now().Format("20060102_150405"), ksuid.New().String(), ext)
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	util.Logger.Info("processed image saved", zap.String("file", name), zap.Int("size", len(data)))
	return name, nil
}

// Path resolves a stored name, rejecting anything that would leave the dir.
func (s *TempStore) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// Cleanup removes stored files older than the ttl.
func (s *TempStore) Cleanup() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read temp dir: %w", err)
	}

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// StartJanitor runs Cleanup on the cron spec until the returned cron is
// stopped.
func (s *TempStore) StartJanitor(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n, err := s.Cleanup()
		if err != nil {
			util.Logger.Warn("temp cleanup failed", zap.Error(err))
		}
		if n > 0 {
			util.Logger.Info("temp cleanup", zap.Int("removed", n))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule temp cleanup %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
