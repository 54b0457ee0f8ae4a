package domain

import (
	"context"
	"net/http"
	"strings"
)

// Transcriber turns recorded audio into text.
type Transcriber interface {
	SpeechToText(ctx context.Context, audio []byte) (string, error)
}

// Advisor produces role-specific advice for a user question.
type Advisor interface {
	GenerateAdvice(ctx context.Context, input string, role Role) (string, error)
}

// ImageAnalyzer diagnoses a crop photo.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, img ImageFile) (string, error)
}

// Synthesizer turns a reply into a playable audio reference.
type Synthesizer interface {
	TextToSpeech(ctx context.Context, text string) (string, error)
}

// TipSource returns an offline tip without any delay.
type TipSource interface {
	LocalFallbackTip(role Role) string
}

// Services bundles the backend operations a chat screen depends on.
type Services interface {
	Transcriber
	Advisor
	ImageAnalyzer
	Synthesizer
	TipSource
}

// ImageFile is an uploaded photo.
type ImageFile struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

// NewImageFile sniffs the content type of data and rejects anything that is not an image.
func NewImageFile(name string, data []byte) (ImageFile, error) {
	ct := http.DetectContentType(data)
	if !strings.HasPrefix(ct, "image/") {
		return ImageFile{}, ErrNotImage
	}
	return ImageFile{
		Name:        name,
		ContentType: ct,
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}
