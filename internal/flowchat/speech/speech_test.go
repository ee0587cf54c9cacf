package speech

import (
	"encoding/binary"
	"testing"

	"github.com/longkey1/flowchat/internal/flowchat/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAV(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	wav, err := EncodeWAV(pcm, 24000, 1, 16)
	require.NoError(t, err)

	require.Len(t, wav, 44+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]), "channels")
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(wav[24:28]), "sample rate")
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(wav[28:32]), "byte rate")
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]), "bits")
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, pcm, wav[44:])

	_, err = EncodeWAV(pcm, 0, 1, 16)
	assert.Error(t, err)
	_, err = EncodeWAV(pcm, 24000, 1, 12)
	assert.Error(t, err)
}

func TestToWAV(t *testing.T) {
	mimeType, data, err := ToWAV("audio/L16;codec=pcm;rate=16000", []byte{0, 0})
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", mimeType)
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(data[24:28]))

	mimeType, data, err = ToWAV("audio/mpeg", []byte{9})
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", mimeType)
	assert.Equal(t, []byte{9}, data)
}

func TestSampleRate(t *testing.T) {
	assert.Equal(t, 44100, SampleRate("audio/L16;rate=44100"))
	assert.Equal(t, DefaultSampleRate, SampleRate("audio/pcm"))
	assert.Equal(t, DefaultSampleRate, SampleRate(";;;"))
	assert.True(t, IsRawPCM("audio/pcm"))
	assert.False(t, IsRawPCM("audio/wav"))
}

func TestParseLanguage(t *testing.T) {
	got, err := ParseLanguage("hi-IN")
	require.NoError(t, err)
	assert.Equal(t, "hi-IN", got)

	got, err = ParseLanguage("gu-in")
	require.NoError(t, err)
	assert.Equal(t, "gu-IN", got)

	_, err = ParseLanguage("fr-FR")
	assert.ErrorContains(t, err, "unsupported speech language")

	_, err = ParseLanguage("not a tag!")
	assert.ErrorContains(t, err, "invalid speech language")

	assert.Equal(t, "Gujarati", LanguageName("gu-IN"))
	assert.Equal(t, "xx", LanguageName("xx"))
}

func TestLanguagePreference(t *testing.T) {
	s := storage.NewMemoryStorage()

	got, err := LoadLanguage(s)
	require.NoError(t, err)
	assert.Equal(t, DefaultLanguage, got)

	saved, err := SaveLanguage(s, "hi-in")
	require.NoError(t, err)
	assert.Equal(t, "hi-IN", saved)

	got, err = LoadLanguage(s)
	require.NoError(t, err)
	assert.Equal(t, "hi-IN", got)

	_, err = SaveLanguage(s, "de-DE")
	assert.Error(t, err)
}

func TestNewCommandPlayerUnknownCommand(t *testing.T) {
	_, err := NewCommandPlayer("definitely-not-a-player-binary")
	assert.Error(t, err)
}
