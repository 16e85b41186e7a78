// Package surface hosts the watch face without a display: frames are rendered
// to PNG in memory and optionally mirrored to a file.
package surface

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/sunshine-wear/internal/looper"
	"github.com/kjstillabower/sunshine-wear/internal/render"
)

// Renderer draws one frame.
type Renderer interface {
	Draw(c render.Canvas)
}

// Frame is an encoded PNG and its sequence number.
type Frame struct {
	PNG []byte
	Seq uint64
}

// Headless implements watchface.Host. Invalidate coalesces: any number of
// calls before the next render produce a single frame.
type Headless struct {
	looper        *looper.Looper
	width, height int
	round         bool
	outPath       string
	logger        *zap.Logger

	renderer Renderer

	mu      sync.Mutex
	pending bool
	frame   Frame
}

// NewHeadless returns a surface of the given size. outPath may be empty.
func NewHeadless(l *looper.Looper, width, height int, round bool, outPath string, logger *zap.Logger) *Headless {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Headless{looper: l, width: width, height: height, round: round, outPath: outPath, logger: logger}
}

// Attach sets the renderer. Must be called before the first Invalidate.
func (s *Headless) Attach(r Renderer) {
	s.renderer = r
}

// Size returns the surface dimensions.
func (s *Headless) Size() (width, height int) {
	return s.width, s.height
}

// Round reports whether the surface is a round screen.
func (s *Headless) Round() bool {
	return s.round
}

// Invalidate schedules a render on the looper.
func (s *Headless) Invalidate() {
	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = true
	s.mu.Unlock()
	if !s.looper.Post(s.render) {
		s.mu.Lock()
		s.pending = false
		s.mu.Unlock()
	}
}

func (s *Headless) render() {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()
	if s.renderer == nil {
		return
	}

	c := render.NewImageCanvas(s.width, s.height)
	s.renderer.Draw(c)
	var buf bytes.Buffer
	if err := c.EncodePNG(&buf); err != nil {
		s.logger.Error("encode frame failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.frame = Frame{PNG: buf.Bytes(), Seq: s.frame.Seq + 1}
	seq := s.frame.Seq
	s.mu.Unlock()

	if s.outPath != "" {
		if err := writeFile(s.outPath, buf.Bytes()); err != nil {
			s.logger.Warn("write frame failed", zap.String("path", s.outPath), zap.Error(err))
		}
	}
	s.logger.Debug("frame rendered", zap.Uint64("seq", seq), zap.Int("bytes", buf.Len()))
}

// Frame returns the last rendered frame. Seq is zero before the first render.
func (s *Headless) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// writeFile replaces path atomically so readers never see a partial PNG.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".frame-*.png")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
