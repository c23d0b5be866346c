package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"strings"

	"slidecast/internal/services"
)

const (
	defaultWordsPerSecond = 2.5
	defaultSampleRate     = 22050
	bitsPerSample         = 16
	channels              = 1
)

// Silence produces mono 16-bit PCM WAV silence sized to the narration text.
type Silence struct {
	wordsPerSecond float64
	sampleRate     int
}

// NewSilence constructs a silence synthesizer; non-positive values fall back
// to defaults.
func NewSilence(wordsPerSecond float64, sampleRate int) *Silence {
	if wordsPerSecond <= 0 {
		wordsPerSecond = defaultWordsPerSecond
	}
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	return &Silence{wordsPerSecond: wordsPerSecond, sampleRate: sampleRate}
}

// Synthesize returns zero-length audio for empty text.
func (s *Silence) Synthesize(ctx context.Context, text, _ string) (Audio, error) {
	if err := ctx.Err(); err != nil {
		return Audio{}, services.Wrap(services.ErrCancelled, "tts", "synthesize", "", err)
	}
	if strings.TrimSpace(text) == "" {
		return Audio{Format: "wav"}, nil
	}
	seconds := EstimateSeconds(text, s.wordsPerSecond)
	samples := int(math.Ceil(seconds * float64(s.sampleRate)))
	return Audio{
		Bytes:           silentWAV(samples, s.sampleRate),
		DurationSeconds: float64(samples) / float64(s.sampleRate),
		Format:          "wav",
	}, nil
}

func silentWAV(samples, sampleRate int) []byte {
	blockAlign := channels * bitsPerSample / 8
	dataLen := samples * blockAlign
	var buf bytes.Buffer
	buf.Grow(44 + dataLen)
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}

var _ Synthesizer = (*Silence)(nil)
