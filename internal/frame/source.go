package frame

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNoFrame means no frame is available yet. Callers treat it as
	// "face absent" for the current tick rather than as a failure.
	ErrNoFrame = errors.New("frame: no frame available yet")

	ErrSourceClosed = errors.New("frame: source closed")
	ErrExhausted    = errors.New("frame: no more frames")
)

// Source yields the most recent camera frame. Implementations that hold
// resources should also implement io.Closer.
type Source interface {
	CurrentFrame(ctx context.Context) (*Frame, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Frame, error)

func (fn SourceFunc) CurrentFrame(ctx context.Context) (*Frame, error) {
	return fn(ctx)
}

// Buffer keeps only the latest frame pushed into it.
type Buffer struct {
	mu     sync.RWMutex
	latest *Frame
	seq    uint64
	closed bool
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Push replaces the latest frame. Frames pushed after Close are dropped.
func (b *Buffer) Push(f *Frame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.seq++
	f.Seq = b.seq
	b.latest = f
	return true
}

// PushEncoded decodes data and pushes the result.
func (b *Buffer) PushEncoded(data []byte) error {
	f, err := Decode(data)
	if err != nil {
		return err
	}
	if !b.Push(f) {
		return ErrSourceClosed
	}
	return nil
}

func (b *Buffer) CurrentFrame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrSourceClosed
	}
	if b.latest == nil {
		return nil, ErrNoFrame
	}
	return b.latest, nil
}

func (b *Buffer) Close() error {
	b.mu.Lock()
	b.closed = true
	b.latest = nil
	b.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (b *Buffer) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
}

// DirSource replays the image files of a directory in lexical order, one per
// CurrentFrame call. Once the files run out it either loops or keeps
// returning ErrExhausted.
type DirSource struct {
	Loop bool
	// OnFrame, if set, is called after each file is served.
	OnFrame func(index int, path string)

	mu    sync.Mutex
	files []string
	next  int
}

func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("read frame dir: no images in %s", dir)
	}
	sort.Strings(files)
	return &DirSource{files: files}, nil
}

func (s *DirSource) Len() int { return len(s.files) }

func (s *DirSource) CurrentFrame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.next >= len(s.files) {
		if !s.Loop {
			s.mu.Unlock()
			return nil, ErrExhausted
		}
		s.next = 0
	}
	idx := s.next
	path := s.files[idx]
	s.next++
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", path, err)
	}
	f, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	f.Seq = uint64(idx + 1)
	f.CapturedAt = time.Now()
	if s.OnFrame != nil {
		s.OnFrame(idx, path)
	}
	return f, nil
}
