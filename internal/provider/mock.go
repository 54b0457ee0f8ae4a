// Package provider simulates the assistant backend: speech-to-text, advice,
// image analysis and speech synthesis all answer from a canned catalog after
// an artificial delay.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"agrisaarthi/internal/domain"
	"agrisaarthi/internal/metrics"
)

const audioURLFormat = "https://mock-tts-service.com/audio/%d.mp3"

// Delays are the simulated latencies of each operation.
type Delays struct {
	STT    time.Duration
	Advice time.Duration
	Vision time.Duration
	TTS    time.Duration
}

// DefaultDelays match the timings of the original demo.
func DefaultDelays() Delays {
	return Delays{
		STT:    1500 * time.Millisecond,
		Advice: 2000 * time.Millisecond,
		Vision: 2500 * time.Millisecond,
		TTS:    1000 * time.Millisecond,
	}
}

// MockConfig configures the simulated backend.
type MockConfig struct {
	Catalog *Catalog // nil = embedded catalog
	Picker  Picker   // nil = math/rand/v2
	Now     func() time.Time
	Delays  Delays
	Logger  *slog.Logger
}

// Mock implements domain.Services with canned responses.
type Mock struct {
	catalog *Catalog
	picker  Picker
	now     func() time.Time
	delays  Delays
	logger  *slog.Logger
}

var _ domain.Services = (*Mock)(nil)

func NewMock(cfg MockConfig) (*Mock, error) {
	if cfg.Catalog == nil {
		c, err := DefaultCatalog()
		if err != nil {
			return nil, err
		}
		cfg.Catalog = c
	}
	if cfg.Picker == nil {
		cfg.Picker = RandomPicker()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Mock{
		catalog: cfg.Catalog,
		picker:  cfg.Picker,
		now:     cfg.Now,
		delays:  cfg.Delays,
		logger:  cfg.Logger,
	}, nil
}

func (m *Mock) Catalog() *Catalog { return m.catalog }

// SpeechToText pretends to transcribe audio and returns a sample utterance.
func (m *Mock) SpeechToText(ctx context.Context, audio []byte) (string, error) {
	defer observe("stt", time.Now())
	if err := wait(ctx, m.delays.STT); err != nil {
		return "", err
	}
	text := pick(m.picker, m.catalog.Utterances)
	m.logger.Debug("stt", "audio_bytes", len(audio), "text", text)
	return text, nil
}

// GenerateAdvice answers from the role's ordered keyword rules. Farmer replies
// always end with the weather and market suffix.
func (m *Mock) GenerateAdvice(ctx context.Context, input string, role domain.Role) (string, error) {
	defer observe("advice", time.Now())
	if err := wait(ctx, m.delays.Advice); err != nil {
		return "", err
	}
	table, ok := m.catalog.Advice[role]
	if !ok {
		return "", fmt.Errorf("generate advice for %q: %w", role, domain.ErrInvalidRole)
	}
	reply := table.Match(input) + table.Suffix
	m.logger.Debug("advice", "role", role, "input_len", len(input), "reply_len", len(reply))
	return reply, nil
}

// AnalyzeImage returns a canned diagnosis; the image content is ignored.
func (m *Mock) AnalyzeImage(ctx context.Context, img domain.ImageFile) (string, error) {
	defer observe("vision", time.Now())
	if err := wait(ctx, m.delays.Vision); err != nil {
		return "", err
	}
	result := pick(m.picker, m.catalog.Diagnoses)
	m.logger.Debug("vision", "image", img.Name, "size", img.Size, "result", result)
	return result, nil
}

// TextToSpeech returns a synthetic audio URL stamped with the current time.
func (m *Mock) TextToSpeech(ctx context.Context, text string) (string, error) {
	defer observe("tts", time.Now())
	if err := wait(ctx, m.delays.TTS); err != nil {
		return "", err
	}
	url := fmt.Sprintf(audioURLFormat, m.now().UnixMilli())
	m.logger.Debug("tts", "text_len", len(text), "url", url)
	return url, nil
}

// LocalFallbackTip returns an offline tip for the role. It never waits.
func (m *Mock) LocalFallbackTip(role domain.Role) string {
	return m.catalog.Tips.Lead + pick(m.picker, m.catalog.Tips.For(role))
}

// WeatherSnapshot returns the canned local reading.
func (m *Mock) WeatherSnapshot() Weather { return m.catalog.Weather }

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func observe(op string, start time.Time) {
	metrics.MockCall(op, time.Since(start))
}
