// Package browser drives the web chat page in headless Chrome to capture
// screenshots of a scripted conversation.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Bridge manages headless Chrome instances pointed at the web chat.
type Bridge struct {
	profileDir string
	headless   bool
	width      int
	height     int
	timeout    time.Duration
	logger     *slog.Logger
}

type BridgeConfig struct {
	ProfileDir string // Chrome user data directory; empty = ~/.agrisaarthi/chrome-profile
	Headless   bool
	Width      int // viewport, defaults to a phone-sized 420x860
	Height     int
	Timeout    time.Duration
	Logger     *slog.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.ProfileDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ProfileDir = filepath.Join(home, ".agrisaarthi", "chrome-profile")
	}
	if cfg.Width <= 0 {
		cfg.Width = 420
	}
	if cfg.Height <= 0 {
		cfg.Height = 860
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		profileDir: cfg.ProfileDir,
		headless:   cfg.Headless,
		width:      cfg.Width,
		height:     cfg.Height,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
}

func (b *Bridge) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.profileDir),
		chromedp.WindowSize(b.width, b.height),
	)
	if b.headless {
		return append(opts, chromedp.Headless)
	}
	return append(opts, chromedp.Flag("headless", false))
}

// NewContext creates a chromedp context using the bridge's profile.
// The caller MUST call cancel() when done.
func (b *Bridge) NewContext(parentCtx context.Context) (context.Context, context.CancelFunc) {
	if err := os.MkdirAll(b.profileDir, 0o755); err != nil {
		b.logger.Error("failed to create profile dir", "dir", b.profileDir, "err", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, b.allocatorOptions()...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	return taskCtx, func() {
		taskCancel()
		allocCancel()
	}
}

// Script is a conversation to play through the page before the screenshot.
type Script struct {
	URL       string
	Role      string   // "farmer" or "gardener"; empty captures the role picker
	Questions []string // asked in order, each waiting for its reply
}

// Result is what Snapshot captured.
type Result struct {
	PNG     []byte
	Replies []string
}

// Snapshot opens the page, plays the script and captures a full-page PNG.
func (b *Bridge) Snapshot(ctx context.Context, sel SelectorSet, script Script) (*Result, error) {
	taskCtx, cancel := b.NewContext(ctx)
	defer cancel()

	taskCtx, taskCancel := context.WithTimeout(taskCtx, b.timeout)
	defer taskCancel()

	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(script.URL),
		chromedp.WaitReady("body"),
	); err != nil {
		return nil, fmt.Errorf("open chat page: %w", err)
	}

	res := &Result{}
	if script.Role != "" {
		if err := chromedp.Run(taskCtx,
			chromedp.WaitVisible(sel.RoleButton(script.Role), chromedp.ByQuery),
			chromedp.Click(sel.RoleButton(script.Role), chromedp.ByQuery),
			chromedp.WaitVisible(sel.Input, chromedp.ByQuery),
		); err != nil {
			return nil, fmt.Errorf("select role %s: %w", script.Role, err)
		}

		for _, q := range script.Questions {
			reply, err := b.ask(taskCtx, sel, q)
			if err != nil {
				return nil, err
			}
			res.Replies = append(res.Replies, reply)
		}
	}

	if err := chromedp.Run(taskCtx, chromedp.FullScreenshot(&res.PNG, 90)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return res, nil
}

// ask sends one question and waits until both its bubble and the reply bubble
// are on the page.
func (b *Bridge) ask(ctx context.Context, sel SelectorSet, question string) (string, error) {
	var before int
	if err := chromedp.Run(ctx, chromedp.Evaluate(sel.countScript(), &before)); err != nil {
		return "", fmt.Errorf("count bubbles: %w", err)
	}

	if err := chromedp.Run(ctx,
		chromedp.SendKeys(sel.Input, question, chromedp.ByQuery),
		chromedp.Click(sel.Submit, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("send question: %w", err)
	}
	b.logger.Debug("waiting for reply", "question", question)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("wait for reply: %w", ctx.Err())
		case <-ticker.C:
		}
		var n int
		if err := chromedp.Run(ctx, chromedp.Evaluate(sel.countScript(), &n)); err != nil {
			return "", fmt.Errorf("count bubbles: %w", err)
		}
		if n >= before+2 {
			break
		}
	}

	var reply string
	if err := chromedp.Run(ctx, chromedp.Evaluate(sel.lastReplyScript(), &reply)); err != nil {
		return "", fmt.Errorf("extract reply: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// SelectorSet holds the CSS selectors of the chat page.
type SelectorSet struct {
	Role   string // role button, %s is replaced by the role name
	Input  string
	Submit string
	Bubble string // any message bubble
	Reply  string // assistant bubbles
}

// ChatPageSelectors matches the page served by the web channel.
func ChatPageSelectors() SelectorSet {
	return SelectorSet{
		Role:   `#roles button[data-role="%s"]`,
		Input:  "#text",
		Submit: `#composer button[type="submit"]`,
		Bubble: ".bubble",
		Reply:  ".bubble.left",
	}
}

func (s SelectorSet) RoleButton(role string) string {
	return fmt.Sprintf(s.Role, role)
}

func (s SelectorSet) countScript() string {
	return fmt.Sprintf(`document.querySelectorAll('%s').length`, s.Bubble)
}

func (s SelectorSet) lastReplyScript() string {
	return fmt.Sprintf(`
		(function() {
			var elements = document.querySelectorAll('%s');
			if (elements.length === 0) return '';
			var last = elements[elements.length - 1];
			return last.innerText || last.textContent || '';
		})()
	`, s.Reply)
}
