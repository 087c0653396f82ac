// Package transcode turns audio files into mono float64 PCM for the
// extraction stage. MP3 decodes in pure Go, WAV is parsed directly, and
// anything else falls back to an ffmpeg subprocess when one is available.
package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/XiaoTianFan/music-cluster/logging"
)

// AudioData is decoded mono PCM plus its sample rate.
type AudioData struct {
	PCM        []float64
	SampleRate int
	Duration   time.Duration
}

// Config holds decoder settings.
type Config struct {
	FFmpegPath string        `json:"ffmpeg_path"`
	Timeout    time.Duration `json:"timeout"`
}

// DefaultConfig assumes ffmpeg on PATH with a 30s decode budget.
func DefaultConfig() Config {
	return Config{
		FFmpegPath: "ffmpeg",
		Timeout:    30 * time.Second,
	}
}

// Decoder decodes audio files to mono PCM.
type Decoder struct {
	cfg    Config
	logger logging.Logger
}

// NewDecoder creates a decoder.
func NewDecoder(cfg Config) *Decoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = DefaultConfig().FFmpegPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Decoder{
		cfg:    cfg,
		logger: logging.WithFields(logging.Fields{"component": "transcode"}),
	}
}

// DecodeFile decodes one audio file, choosing a decode path by extension.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*AudioData, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return d.decodeMP3(path)
	case ".wav":
		return d.decodeWAV(path)
	default:
		return d.decodeWithFFmpeg(ctx, path)
	}
}

func (d *Decoder) decodeMP3(path string) (*AudioData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("decode mp3 %s: %w", path, err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("read mp3 samples %s: %w", path, err)
	}

	// go-mp3 always emits 16-bit little-endian stereo; downmix to mono.
	pcm := stereoInt16ToMono(raw)
	return newAudioData(pcm, dec.SampleRate()), nil
}

func (d *Decoder) decodeWAV(path string) (*AudioData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%s: not a RIFF/WAVE file", path)
	}

	var sampleRate int
	var channels, bitsPerSample int
	var body []byte

	// Walk the chunk list for fmt and data.
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		payloadStart := off + 8
		if payloadStart+size > len(data) {
			size = len(data) - payloadStart
		}
		payload := data[payloadStart : payloadStart+size]
		switch id {
		case "fmt ":
			if len(payload) < 16 {
				return nil, fmt.Errorf("%s: truncated fmt chunk", path)
			}
			format := binary.LittleEndian.Uint16(payload[0:2])
			if format != 1 {
				return nil, fmt.Errorf("%s: unsupported WAV format %d (PCM only)", path, format)
			}
			channels = int(binary.LittleEndian.Uint16(payload[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(payload[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(payload[14:16]))
		case "data":
			body = payload
		}
		off = payloadStart + size
		if size%2 == 1 {
			off++ // chunks are word aligned
		}
	}

	if sampleRate == 0 || body == nil {
		return nil, fmt.Errorf("%s: missing fmt or data chunk", path)
	}
	if bitsPerSample != 16 {
		return nil, fmt.Errorf("%s: unsupported bit depth %d (16-bit PCM only)", path, bitsPerSample)
	}
	if channels < 1 {
		return nil, fmt.Errorf("%s: invalid channel count %d", path, channels)
	}

	pcm := interleavedInt16ToMono(body, channels)
	return newAudioData(pcm, sampleRate), nil
}

// decodeWithFFmpeg shells out to ffmpeg for formats without a pure-Go path.
func (d *Decoder) decodeWithFFmpeg(ctx context.Context, path string) (*AudioData, error) {
	if _, err := exec.LookPath(d.cfg.FFmpegPath); err != nil {
		return nil, fmt.Errorf("no decoder for %s and ffmpeg unavailable: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	const targetRate = 44100
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-f", "f64le",
		"-acodec", "pcm_f64le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", targetRate),
		"pipe:1",
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.cfg.FFmpegPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	d.logger.Debug("decoding via ffmpeg", logging.Fields{"path": path})
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}

	raw := stdout.Bytes()
	pcm := make([]float64, len(raw)/8)
	for i := range pcm {
		bits := binary.LittleEndian.Uint64(raw[i*8 : i*8+8])
		pcm[i] = math.Float64frombits(bits)
	}
	return newAudioData(pcm, targetRate), nil
}

func newAudioData(pcm []float64, sampleRate int) *AudioData {
	duration := time.Duration(0)
	if sampleRate > 0 {
		duration = time.Duration(float64(len(pcm)) / float64(sampleRate) * float64(time.Second))
	}
	return &AudioData{PCM: pcm, SampleRate: sampleRate, Duration: duration}
}

func stereoInt16ToMono(raw []byte) []float64 {
	frames := len(raw) / 4
	pcm := make([]float64, frames)
	for i := 0; i < frames; i++ {
		left := int16(binary.LittleEndian.Uint16(raw[i*4 : i*4+2]))
		right := int16(binary.LittleEndian.Uint16(raw[i*4+2 : i*4+4]))
		pcm[i] = (float64(left) + float64(right)) / 2 / 32768
	}
	return pcm
}

func interleavedInt16ToMono(raw []byte, channels int) []float64 {
	frameBytes := 2 * channels
	frames := len(raw) / frameBytes
	pcm := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			off := i*frameBytes + c*2
			sum += float64(int16(binary.LittleEndian.Uint16(raw[off : off+2])))
		}
		pcm[i] = sum / float64(channels) / 32768
	}
	return pcm
}
