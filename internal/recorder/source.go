package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// defaultChunkSize mirrors the slice size browsers emit per dataavailable event.
const defaultChunkSize = 16 << 10

// FileSource replays a prerecorded file as a capture. It is used by the
// terminal client, where there is no microphone.
type FileSource struct {
	Path      string
	ChunkSize int
}

// Open opens the file. A missing or unreadable file is reported like a
// refused device.
func (s FileSource) Open(ctx context.Context) (Stream, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.Path, err)
	}

	size := s.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}

	st := &fileStream{
		file:   f,
		chunks: make(chan []byte),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go st.run(size)
	return st, nil
}

type fileStream struct {
	file   *os.File
	chunks chan []byte
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *fileStream) Chunks() <-chan []byte { return s.chunks }

func (s *fileStream) run(size int) {
	defer close(s.done)
	defer close(s.chunks)

	for {
		buf := make([]byte, size)
		n, err := s.file.Read(buf)
		if n > 0 {
			select {
			case s.chunks <- buf[:n]:
			case <-s.stop:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			return
		}
	}
}

// Stop waits for the file to be drained and closes it.
func (s *fileStream) Stop() error {
	s.once.Do(func() {
		<-s.done
		if err := s.file.Close(); err != nil && s.err == nil {
			s.err = err
		}
	})
	return s.err
}

// ErrStreamClosed is returned by PushSource.Push when no capture is open.
var ErrStreamClosed = errors.New("capture stream is closed")

// PushSource is fed by a remote capture, such as a browser sending chunks
// over a websocket. Each Open starts a new stream; Push writes to the newest.
type PushSource struct {
	mu      sync.Mutex
	current *pushStream
	buffer  int
}

// NewPushSource creates a PushSource buffering up to buffer chunks.
func NewPushSource(buffer int) *PushSource {
	if buffer <= 0 {
		buffer = 64
	}
	return &PushSource{buffer: buffer}
}

// Open starts a new stream, closing any previous one.
func (s *PushSource) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := &pushStream{chunks: make(chan []byte, s.buffer)}

	s.mu.Lock()
	prev := s.current
	s.current = st
	s.mu.Unlock()

	if prev != nil {
		_ = prev.Stop()
	}
	return st, nil
}

// Push appends a chunk to the open stream.
func (s *PushSource) Push(chunk []byte) error {
	s.mu.Lock()
	st := s.current
	s.mu.Unlock()

	if st == nil {
		return ErrStreamClosed
	}
	return st.push(chunk)
}

type pushStream struct {
	mu     sync.Mutex
	chunks chan []byte
	closed bool
}

func (s *pushStream) Chunks() <-chan []byte { return s.chunks }

func (s *pushStream) push(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.chunks <- append([]byte(nil), chunk...)
	return nil
}

func (s *pushStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.chunks)
	}
	return nil
}
