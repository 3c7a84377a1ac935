// Package audio plays alarm sounds through the system audio output.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"
)

// BuiltinDefault selects the synthesized default tone.
const BuiltinDefault = "builtin:default"

// ErrNoDevice is returned when the audio output could not be opened.
var ErrNoDevice = errors.New("audio output unavailable")

// oto allows one context per process, so it is shared by every Player.
var (
	outputCtx     *oto.Context
	outputCtxErr  error
	outputCtxOnce sync.Once
)

func output(log zerolog.Logger) (*oto.Context, error) {
	outputCtxOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   defaultFormat.SampleRate,
			ChannelCount: defaultFormat.Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			outputCtxErr = fmt.Errorf("%w: %v", ErrNoDevice, err)
			log.Error().Err(err).Msg("[AUDIO] failed to initialize audio context")
			return
		}

		// Wait for the hardware audio devices to be ready
		<-ready

		outputCtx = ctx
		log.Info().Msg("[AUDIO] audio context initialized")
	})
	return outputCtx, outputCtxErr
}

// Player plays one sound at a time. Play replaces whatever is playing.
type Player struct {
	log zerolog.Logger

	mu      sync.Mutex
	current *oto.Player
	source  *loopReader
}

// NewPlayer creates a Player. The audio output is opened on first Play.
func NewPlayer(log zerolog.Logger) *Player {
	return &Player{log: log.With().Str("component", "audio").Logger()}
}

// Play starts uri at volume (0.0 - 1.0) and returns without waiting.
// uri is BuiltinDefault, a file path or a file:// URL to a 16-bit PCM WAV.
func (p *Player) Play(uri string, looping bool, volume float64) error {
	format, pcm, err := load(uri)
	if err != nil {
		return err
	}
	if format.SampleRate != defaultFormat.SampleRate || format.Channels != defaultFormat.Channels {
		return fmt.Errorf("audio: %s is %d Hz/%d ch, output is %d Hz/%d ch",
			uri, format.SampleRate, format.Channels, defaultFormat.SampleRate, defaultFormat.Channels)
	}

	ctx, err := output(p.log)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	p.source = newLoopReader(pcm, looping)
	p.current = ctx.NewPlayer(p.source)
	p.current.SetVolume(clamp(volume))
	p.current.Play()

	p.log.Info().Str("uri", uri).Bool("looping", looping).Float64("volume", volume).Msg("[AUDIO] playback started")
	return nil
}

// Stop halts playback. It is safe to call when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		p.stopLocked()
		p.log.Info().Msg("[AUDIO] playback stopped")
	}
}

func (p *Player) stopLocked() {
	if p.source != nil {
		p.source.stop()
		p.source = nil
	}
	if p.current != nil {
		p.current.Pause()
		if err := p.current.Close(); err != nil {
			p.log.Warn().Err(err).Msg("[AUDIO] failed to close audio player")
		}
		p.current = nil
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// load resolves uri to PCM data.
func load(uri string) (Format, []byte, error) {
	if uri == BuiltinDefault {
		return parseWAV(defaultTone())
	}

	path := uri
	if strings.HasPrefix(uri, "file:") {
		u, err := url.Parse(uri)
		if err != nil {
			return Format{}, nil, fmt.Errorf("audio: bad uri %q: %w", uri, err)
		}
		path = u.Path
	} else if strings.Contains(uri, "://") {
		return Format{}, nil, fmt.Errorf("audio: unsupported uri %q", uri)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Format{}, nil, fmt.Errorf("audio: %w", err)
	}
	format, pcm, err := parseWAV(data)
	if err != nil {
		return Format{}, nil, fmt.Errorf("audio: %s: %w", path, err)
	}
	return format, pcm, nil
}

// loopReader feeds PCM to oto, restarting from the top when looping.
type loopReader struct {
	mu      sync.Mutex
	data    []byte
	r       *bytes.Reader
	looping bool
	stopped bool
}

func newLoopReader(data []byte, looping bool) *loopReader {
	return &loopReader{data: data, r: bytes.NewReader(data), looping: looping}
}

func (l *loopReader) Read(buf []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped || len(l.data) == 0 {
		return 0, io.EOF
	}
	n, err := l.r.Read(buf)
	if err == io.EOF && l.looping {
		l.r.Reset(l.data)
		n, err = l.r.Read(buf)
	}
	return n, err
}

func (l *loopReader) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
}
