package playback

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNothingLoaded = errors.New("no track loaded")
	ErrCanceled      = errors.New("playback canceled")
)

const (
	sampleRate  = 44100
	channels    = 2
	frameBytes  = channels * 2
	chunkPeriod = 20 * time.Millisecond
	chunkBytes  = sampleRate * frameBytes * int(chunkPeriod/time.Millisecond) / 1000
)

type FFmpegConfig struct {
	Binary string
	// Output is a shell command fed raw s16le/44.1kHz/stereo PCM on stdin.
	// When empty the audio is paced and discarded.
	Output string
}

// FFmpegSession decodes a stream with ffmpeg and writes PCM to the output
// sink in real time.
type FFmpegSession struct {
	config FFmpegConfig
	logger *zap.Logger
	gain   atomic.Uint32

	mu  sync.Mutex
	cur *pcmStream

	sinkMu  sync.Mutex
	sink    io.WriteCloser
	sinkCmd *exec.Cmd
}

func NewFFmpegSession(cfg FFmpegConfig, logger *zap.Logger) *FFmpegSession {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FFmpegSession{config: cfg, logger: logger}
	s.gain.Store(MaxGain)
	return s
}

func (s *FFmpegSession) Load(ctx context.Context, ref string, autostart bool, position time.Duration) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		s.cur.cancel()
		s.cur = nil
	}

	streamCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(streamCtx, s.config.Binary, ffmpegArgs(ref, position)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	st := &pcmStream{
		cancel: cancel,
		done:   make(chan error, 1),
		wake:   make(chan struct{}, 1),
	}
	st.playing.Store(autostart)
	s.cur = st

	go func() {
		err := s.copyLoop(streamCtx, st, stdout)
		_ = cmd.Wait()
		st.finish(err)
	}()

	return st.done, nil
}

func (s *FFmpegSession) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil {
		return ErrNothingLoaded
	}
	s.cur.playing.Store(true)
	select {
	case s.cur.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *FFmpegSession) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		s.cur.playing.Store(false)
	}
	return nil
}

func (s *FFmpegSession) Stop() error {
	s.mu.Lock()
	if s.cur != nil {
		s.cur.cancel()
		s.cur = nil
	}
	s.mu.Unlock()

	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	return s.closeSinkLocked()
}

func (s *FFmpegSession) SetMixerGain(gain uint16) {
	s.gain.Store(uint32(gain))
}

func (s *FFmpegSession) copyLoop(ctx context.Context, st *pcmStream, r io.Reader) error {
	reader := bufio.NewReaderSize(r, 65536)
	buf := make([]byte, chunkBytes)
	ticker := time.NewTicker(chunkPeriod)
	defer ticker.Stop()

	for {
		if !st.playing.Load() {
			select {
			case <-ctx.Done():
				return ErrCanceled
			case <-st.wake:
				continue
			}
		}

		select {
		case <-ctx.Done():
			return ErrCanceled
		case <-ticker.C:
		}

		n, err := io.ReadFull(reader, buf)
		if n > 0 {
			chunk := buf[:n-n%2]
			applyGain(chunk, uint16(s.gain.Load()))
			if werr := s.writeSink(chunk); werr != nil {
				return fmt.Errorf("output sink: %w", werr)
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			if ctx.Err() != nil {
				return ErrCanceled
			}
			return nil
		default:
			if ctx.Err() != nil {
				return ErrCanceled
			}
			return err
		}
	}
}

func (s *FFmpegSession) writeSink(p []byte) error {
	if s.config.Output == "" {
		return nil
	}

	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()

	if s.sink == nil {
		cmd := exec.Command("sh", "-c", s.config.Output)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return err
		}
		if err := cmd.Start(); err != nil {
			return err
		}
		s.sink = stdin
		s.sinkCmd = cmd
		s.logger.Info("output sink started", zap.String("command", s.config.Output))
	}

	if _, err := s.sink.Write(p); err != nil {
		_ = s.closeSinkLocked()
		return err
	}
	return nil
}

func (s *FFmpegSession) closeSinkLocked() error {
	if s.sink == nil {
		return nil
	}
	err := s.sink.Close()
	if s.sinkCmd != nil {
		_ = s.sinkCmd.Wait()
	}
	s.sink = nil
	s.sinkCmd = nil
	return err
}

type pcmStream struct {
	cancel  context.CancelFunc
	done    chan error
	wake    chan struct{}
	playing atomic.Bool
	once    sync.Once
}

func (st *pcmStream) finish(err error) {
	st.once.Do(func() {
		st.done <- err
	})
}

func ffmpegArgs(ref string, position time.Duration) []string {
	args := []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
	}
	if position > 0 {
		args = append(args, "-ss", strconv.FormatFloat(position.Seconds(), 'f', 3, 64))
	}
	return append(args,
		"-i", ref,
		"-vn",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-loglevel", "warning",
		"pipe:1",
	)
}

// applyGain scales little-endian signed 16-bit samples in place.
func applyGain(pcm []byte, gain uint16) {
	if gain == MaxGain {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int32(int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8))
		sample = sample * int32(gain) / MaxGain
		pcm[i] = byte(uint16(int16(sample)))
		pcm[i+1] = byte(uint16(int16(sample)) >> 8)
	}
}
