package render

import (
	"errors"
	"sync"
	"time"

	"agrisaarthi/internal/domain"
)

// DefaultPlayback is how long a simulated clip "plays".
const DefaultPlayback = 3 * time.Second

var errNoAudio = errors.New("message has no audio")

// Player pretends to play audio: it only holds a playing flag for a fixed
// duration. Nothing is fetched or decoded.
type Player struct {
	duration time.Duration

	mu      sync.Mutex
	playing string
	timer   *time.Timer
	clip    uint64
}

func NewPlayer(d time.Duration) *Player {
	if d <= 0 {
		d = DefaultPlayback
	}
	return &Player{duration: d}
}

// Play starts a clip. It fails with domain.ErrAlreadyPlaying while another
// clip is running.
func (p *Player) Play(url string) error {
	if url == "" {
		return errNoAudio
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing != "" {
		return domain.ErrAlreadyPlaying
	}
	p.playing = url
	p.clip++
	clip := p.clip
	p.timer = time.AfterFunc(p.duration, func() { p.expire(clip) })
	return nil
}

// expire ends clip unless it was already stopped or replaced.
func (p *Player) expire(clip uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clip != clip {
		return
	}
	p.timer = nil
	p.playing = ""
}

// Playing returns the URL being played, if any.
func (p *Player) Playing() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing, p.playing != ""
}

func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.playing = ""
}

func (p *Player) Duration() time.Duration { return p.duration }
