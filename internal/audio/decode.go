package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// Codec names a container the decoders understand.
type Codec string

const (
	CodecUnknown Codec = ""
	CodecMP3     Codec = "mp3"
	CodecWAV     Codec = "wav"
	CodecFLAC    Codec = "flac"
	CodecVorbis  Codec = "vorbis"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

const sniffLen = 12

var extCodecs = map[string]Codec{
	".mp3":  CodecMP3,
	".wav":  CodecWAV,
	".wave": CodecWAV,
	".flac": CodecFLAC,
	".ogg":  CodecVorbis,
	".oga":  CodecVorbis,
}

// Sniff picks a codec from the first bytes of a file, falling back to the
// extension of name. Signed URLs carry query strings, so only the path part
// of name is considered.
func Sniff(header []byte, name string) Codec {
	switch {
	case bytes.HasPrefix(header, []byte("fLaC")):
		return CodecFLAC
	case bytes.HasPrefix(header, []byte("OggS")):
		return CodecVorbis
	case len(header) >= 12 && bytes.HasPrefix(header, []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")):
		return CodecWAV
	case bytes.HasPrefix(header, []byte("ID3")):
		return CodecMP3
	case len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		return CodecMP3
	}

	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return extCodecs[strings.ToLower(path.Ext(name))]
}

// Decode detects the codec of rc and returns a seekable stream over it.
// The returned streamer owns rc and closes it.
func Decode(rc io.ReadSeekCloser, name string) (beep.StreamSeekCloser, beep.Format, error) {
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("failed to read audio header: %w", err)
	}
	if _, err := rc.Seek(0, io.SeekStart); err != nil {
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("failed to rewind audio: %w", err)
	}

	codec := Sniff(header[:n], name)

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch codec {
	case CodecMP3:
		streamer, format, err = mp3.Decode(rc)
	case CodecWAV:
		streamer, format, err = wav.Decode(rc)
	case CodecFLAC:
		streamer, format, err = flac.Decode(rc)
	case CodecVorbis:
		streamer, format, err = vorbis.Decode(rc)
	default:
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path.Base(name))
	}
	if err != nil {
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("failed to decode %s: %w", codec, err)
	}

	return streamer, format, nil
}

type bytesCloser struct {
	*bytes.Reader
}

func (bytesCloser) Close() error { return nil }

// NewMemReader wraps an in-memory payload for Decode.
func NewMemReader(data []byte) io.ReadSeekCloser {
	return bytesCloser{bytes.NewReader(data)}
}

// DecodeBytes decodes an in-memory payload.
func DecodeBytes(data []byte, name string) (beep.StreamSeekCloser, beep.Format, error) {
	return Decode(NewMemReader(data), name)
}

// Load decodes data fully into memory, resampled to the output rate, so
// any number of independent streamers can be cut from it.
func Load(data []byte, name string, rate beep.SampleRate) (*beep.Buffer, error) {
	streamer, format, err := DecodeBytes(data, name)
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	var src beep.Streamer = streamer
	if format.SampleRate != rate {
		src = beep.Resample(ResampleQuality, format.SampleRate, rate, streamer)
		format.SampleRate = rate
	}

	buffer := beep.NewBuffer(format)
	buffer.Append(src)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}
	return buffer, nil
}
