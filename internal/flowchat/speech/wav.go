// Package speech handles synthesized audio: WAV packaging, playback through
// a system player and the speech-language preference.
package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"mime"
	"strconv"
	"strings"
)

// DefaultSampleRate is used for raw PCM that does not declare its rate.
const DefaultSampleRate = 24000

// EncodeWAV wraps little-endian PCM samples in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, sampleRate, channels, bitsPerSample int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 || bitsPerSample <= 0 || bitsPerSample%8 != 0 {
		return nil, fmt.Errorf("invalid wav format: rate=%d channels=%d bits=%d", sampleRate, channels, bitsPerSample)
	}
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16)) // PCM header size
	binary.Write(&buf, binary.LittleEndian, uint16(1))  // PCM format
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// IsRawPCM reports whether mimeType describes headerless PCM samples
// (e.g. "audio/L16;codec=pcm;rate=24000").
func IsRawPCM(mimeType string) bool {
	media, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		media = strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	}
	media = strings.ToLower(media)
	return media == "audio/l16" || media == "audio/pcm"
}

// SampleRate returns the rate= parameter of a PCM mime type, or DefaultSampleRate.
func SampleRate(mimeType string) int {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return DefaultSampleRate
	}
	if rate, err := strconv.Atoi(params["rate"]); err == nil && rate > 0 {
		return rate
	}
	return DefaultSampleRate
}

// ToWAV returns audio as WAV bytes, wrapping raw PCM as mono 16-bit.
// Audio already in another container is returned unchanged with its type.
func ToWAV(mimeType string, data []byte) (string, []byte, error) {
	if !IsRawPCM(mimeType) {
		return mimeType, data, nil
	}
	wav, err := EncodeWAV(data, SampleRate(mimeType), 1, 16)
	if err != nil {
		return "", nil, err
	}
	return "audio/wav", wav, nil
}
