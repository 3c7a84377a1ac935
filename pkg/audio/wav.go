package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Format describes 16-bit little-endian PCM audio.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

var errNotWAV = errors.New("not a RIFF/WAVE file")

// parseWAV returns the format and the PCM payload of a WAV file.
func parseWAV(data []byte) (Format, []byte, error) {
	var format Format
	reader := bytes.NewReader(data)

	header := make([]byte, 12)
	if _, err := io.ReadFull(reader, header); err != nil {
		return format, nil, errNotWAV
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return format, nil, errNotWAV
	}

	var haveFmt bool
	for {
		chunkID := make([]byte, 4)
		if _, err := io.ReadFull(reader, chunkID); err != nil {
			return format, nil, fmt.Errorf("wav: data chunk not found")
		}

		var chunkSize uint32
		if err := binary.Read(reader, binary.LittleEndian, &chunkSize); err != nil {
			return format, nil, fmt.Errorf("wav: read chunk size: %w", err)
		}

		switch string(chunkID) {
		case "fmt ":
			var hdr struct {
				AudioFormat   uint16
				NumChannels   uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if chunkSize < 16 {
				return format, nil, fmt.Errorf("wav: short fmt chunk")
			}
			if err := binary.Read(reader, binary.LittleEndian, &hdr); err != nil {
				return format, nil, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			if hdr.AudioFormat != 1 {
				return format, nil, fmt.Errorf("wav: unsupported encoding %d, want PCM", hdr.AudioFormat)
			}
			format = Format{
				SampleRate: int(hdr.SampleRate),
				Channels:   int(hdr.NumChannels),
				BitDepth:   int(hdr.BitsPerSample),
			}
			if format.BitDepth != 16 {
				return format, nil, fmt.Errorf("wav: unsupported bit depth %d", format.BitDepth)
			}
			// Skip any extra format bytes
			if _, err := reader.Seek(int64(chunkSize-16), io.SeekCurrent); err != nil {
				return format, nil, err
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return format, nil, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			size := int(chunkSize)
			if size > reader.Len() {
				size = reader.Len()
			}
			pcm := make([]byte, size)
			if _, err := io.ReadFull(reader, pcm); err != nil {
				return format, nil, fmt.Errorf("wav: read data: %w", err)
			}
			return format, pcm, nil
		default:
			// Chunks are padded to an even length.
			skip := int64(chunkSize) + int64(chunkSize%2)
			if _, err := reader.Seek(skip, io.SeekCurrent); err != nil {
				return format, nil, err
			}
		}
	}
}

// encodeWAV wraps PCM data in a minimal WAV header.
func encodeWAV(format Format, pcm []byte) []byte {
	var buf bytes.Buffer
	blockAlign := format.Channels * format.BitDepth / 8

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	for _, v := range []any{
		uint32(16),
		uint16(1),
		uint16(format.Channels),
		uint32(format.SampleRate),
		uint32(format.SampleRate * blockAlign),
		uint16(blockAlign),
		uint16(format.BitDepth),
	} {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// defaultFormat is used for the built-in tone and for the shared output context.
var defaultFormat = Format{SampleRate: 44100, Channels: 2, BitDepth: 16}

// defaultTone renders two short 880 Hz beeps followed by a pause, as a WAV file.
func defaultTone() []byte {
	const (
		freq      = 880.0
		amplitude = 0.6 * math.MaxInt16
	)
	segments := []struct {
		ms int
		on bool
	}{
		{150, true}, {100, false}, {150, true}, {600, false},
	}

	var pcm bytes.Buffer
	for _, seg := range segments {
		n := seg.ms * defaultFormat.SampleRate / 1000
		for i := 0; i < n; i++ {
			var v int16
			if seg.on {
				v = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(defaultFormat.SampleRate)))
			}
			for c := 0; c < defaultFormat.Channels; c++ {
				_ = binary.Write(&pcm, binary.LittleEndian, v)
			}
		}
	}
	return encodeWAV(defaultFormat, pcm.Bytes())
}
