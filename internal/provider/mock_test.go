package provider

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"agrisaarthi/internal/domain"
)

const farmerSuffix = "\n\nWeather forecast: Sunny with 20% chance of rain. Good conditions for field work.\nMarket prices: Wheat ₹25/kg, Tomatoes ₹40/kg, Corn ₹22/kg."

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestMock(t *testing.T, p Picker) *Mock {
	t.Helper()
	m, err := NewMock(MockConfig{Picker: p, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new mock: %v", err)
	}
	return m
}

func TestGenerateAdvice_DefaultWhenNoKeyword(t *testing.T) {
	m := newTestMock(t, FixedPicker(0))
	ctx := context.Background()

	got, err := m.GenerateAdvice(ctx, "hello there", domain.RoleGardener)
	if err != nil {
		t.Fatal(err)
	}
	if got != m.Catalog().Advice[domain.RoleGardener].Default {
		t.Fatalf("expected gardener default, got %q", got)
	}

	got, _ = m.GenerateAdvice(ctx, "what about rice?", domain.RoleFarmer)
	want := m.Catalog().Advice[domain.RoleFarmer].Default + farmerSuffix
	if got != want {
		t.Fatalf("expected farmer default with suffix, got %q", got)
	}
}

func TestGenerateAdvice_CaseInsensitiveKeyword(t *testing.T) {
	m := newTestMock(t, FixedPicker(0))
	got, _ := m.GenerateAdvice(context.Background(), "WHEAT harvest?", domain.RoleFarmer)
	if !strings.HasPrefix(got, "Wheat is typically ready for harvest") {
		t.Fatalf("expected wheat advice, got %q", got)
	}
}

func TestGenerateAdvice_FirstRuleWins(t *testing.T) {
	m := newTestMock(t, FixedPicker(0))
	// "wheat" appears first in the text but "tomato" is defined first.
	got, _ := m.GenerateAdvice(context.Background(), "wheat next to tomato", domain.RoleFarmer)
	if !strings.HasPrefix(got, "Yellow leaves on tomatoes") {
		t.Fatalf("expected tomato advice (definition order), got %q", got)
	}

	// "plant" is listed before "flower" and "pest" for gardeners.
	got, _ = m.GenerateAdvice(context.Background(), "flower plant pest", domain.RoleGardener)
	if !strings.HasPrefix(got, "Spring and fall are typically the best times") {
		t.Fatalf("expected plant advice, got %q", got)
	}
}

func TestGenerateAdvice_FarmerAlwaysEndsWithSuffix(t *testing.T) {
	m := newTestMock(t, FixedPicker(0))
	inputs := []string{"", "tomato", "corn fertilizer", "my SOIL", "random words"}
	for _, in := range inputs {
		got, err := m.GenerateAdvice(context.Background(), in, domain.RoleFarmer)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasSuffix(got, farmerSuffix) {
			t.Fatalf("input %q: reply missing weather/market suffix: %q", in, got)
		}
	}
}

func TestGenerateAdvice_TomatoScenario(t *testing.T) {
	m := newTestMock(t, FixedPicker(0))
	got, _ := m.GenerateAdvice(context.Background(), "My tomato plants have yellow leaves", domain.RoleFarmer)
	want := "Yellow leaves on tomatoes often indicate overwatering or nutrient deficiency. Check soil moisture and consider adding nitrogen fertilizer. Also ensure proper drainage." + farmerSuffix
	if got != want {
		t.Fatalf("unexpected reply:\n got %q\nwant %q", got, want)
	}
}

func TestGenerateAdvice_GardenerPestExact(t *testing.T) {
	m := newTestMock(t, FixedPicker(0))
	got, _ := m.GenerateAdvice(context.Background(), "How do I stop a pest on my roses?", domain.RoleGardener)
	want := "For garden pests, try companion planting, beneficial insects, or organic sprays like soap solution. Remove affected plants promptly."
	if got != want {
		t.Fatalf("expected exact pest advice, got %q", got)
	}
}

func TestGenerateAdvice_UnknownRole(t *testing.T) {
	m := newTestMock(t, FixedPicker(0))
	_, err := m.GenerateAdvice(context.Background(), "x", domain.RoleUnset)
	if !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestSpeechToText_PoolMembershipAndCoverage(t *testing.T) {
	m := newTestMock(t, SeededPicker(7))
	pool := m.Catalog().Utterances
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		got, err := m.SpeechToText(context.Background(), []byte("mock audio data"))
		if err != nil {
			t.Fatal(err)
		}
		if !contains(pool, got) {
			t.Fatalf("utterance %q not in pool", got)
		}
		seen[got] = true
	}
	if len(seen) != len(pool) {
		t.Fatalf("expected all %d utterances to appear, saw %d", len(pool), len(seen))
	}
}

func TestAnalyzeImage_PoolMembershipAndCoverage(t *testing.T) {
	m := newTestMock(t, SeededPicker(11))
	pool := m.Catalog().Diagnoses
	if len(pool) != 6 {
		t.Fatalf("expected six diagnoses, got %d", len(pool))
	}
	seen := make(map[string]bool)
	for i := 0; i < 600; i++ {
		got, err := m.AnalyzeImage(context.Background(), domain.ImageFile{Name: "leaf.png"})
		if err != nil {
			t.Fatal(err)
		}
		if !contains(pool, got) {
			t.Fatalf("diagnosis %q not in pool", got)
		}
		seen[got] = true
	}
	if len(seen) != len(pool) {
		t.Fatalf("expected all %d diagnoses to appear, saw %d", len(pool), len(seen))
	}
}

var audioURLPattern = regexp.MustCompile(`^https://mock-tts-service\.com/audio/\d+\.mp3$`)

func TestTextToSpeech_URLPattern(t *testing.T) {
	fixed := time.UnixMilli(1700000000123)
	m, err := NewMock(MockConfig{Now: func() time.Time { return fixed }, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.TextToSpeech(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://mock-tts-service.com/audio/1700000000123.mp3" {
		t.Fatalf("unexpected url %q", got)
	}
	if !audioURLPattern.MatchString(got) {
		t.Fatalf("url %q does not match pattern", got)
	}
}

func TestLocalFallbackTip(t *testing.T) {
	m := newTestMock(t, FixedPicker(2))
	got := m.LocalFallbackTip(domain.RoleGardener)
	want := "Here's a helpful tip while offline: Deadhead flowers regularly to encourage continued blooming."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	got = m.LocalFallbackTip(domain.RoleFarmer)
	if !strings.HasPrefix(got, "Here's a helpful tip while offline: ") {
		t.Fatalf("missing lead-in: %q", got)
	}
	if !contains(m.Catalog().Tips.Farmer, strings.TrimPrefix(got, m.Catalog().Tips.Lead)) {
		t.Fatalf("tip %q not in farmer pool", got)
	}
}

func TestMock_DelayHonorsContext(t *testing.T) {
	m, err := NewMock(MockConfig{Delays: Delays{Advice: time.Hour}, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.GenerateAdvice(ctx, "tomato", domain.RoleFarmer)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestMock_DelayIsApplied(t *testing.T) {
	m, err := NewMock(MockConfig{Delays: Delays{TTS: 30 * time.Millisecond}, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if _, err := m.TextToSpeech(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if took := time.Since(start); took < 30*time.Millisecond {
		t.Fatalf("expected at least 30ms, took %v", took)
	}
}

func TestClimateTip(t *testing.T) {
	cases := []struct {
		w    Weather
		want string
	}{
		{Weather{TempC: 36, Humidity: 20, Condition: "light rain"}, "High heat! Use shade nets and reduce irrigation."},
		{Weather{TempC: 25, Humidity: 80, Condition: "Light Rain"}, "Rain expected. Avoid fertilizer today."},
		{Weather{TempC: 25, Humidity: 30, Condition: "clear sky"}, "Low humidity. Use drip irrigation or mulching."},
		{Weather{TempC: 25, Humidity: 60, Condition: "clear sky"}, "Weather is favorable for most crops."},
	}
	for _, c := range cases {
		if got := ClimateTip(c.w); got != c.want {
			t.Errorf("%+v: got %q, want %q", c.w, got, c.want)
		}
	}
}

func contains(pool []string, s string) bool {
	for _, p := range pool {
		if p == s {
			return true
		}
	}
	return false
}
