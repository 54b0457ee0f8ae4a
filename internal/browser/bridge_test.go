package browser

import (
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
)

func TestNewBridge_Defaults(t *testing.T) {
	b := NewBridge(BridgeConfig{ProfileDir: t.TempDir()})
	if b.width != 420 || b.height != 860 {
		t.Fatalf("expected 420x860 viewport, got %dx%d", b.width, b.height)
	}
	if b.timeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", b.timeout)
	}
	if b.logger == nil {
		t.Fatal("logger should default")
	}
}

func TestNewBridge_DefaultProfileDir(t *testing.T) {
	b := NewBridge(BridgeConfig{})
	if !strings.HasSuffix(b.profileDir, "chrome-profile") {
		t.Fatalf("unexpected profile dir %q", b.profileDir)
	}
}

func TestAllocatorOptions_AddsProfileAndViewport(t *testing.T) {
	b := NewBridge(BridgeConfig{ProfileDir: t.TempDir(), Headless: true})
	opts := b.allocatorOptions()
	base := len(chromedp.DefaultExecAllocatorOptions)
	if len(opts) != base+3 {
		t.Fatalf("expected %d options, got %d", base+3, len(opts))
	}
}

func TestChatPageSelectors(t *testing.T) {
	sel := ChatPageSelectors()
	if got := sel.RoleButton("gardener"); got != `#roles button[data-role="gardener"]` {
		t.Fatalf("unexpected role selector %q", got)
	}
	if !strings.Contains(sel.countScript(), "'.bubble'") {
		t.Fatalf("count script should query bubbles: %s", sel.countScript())
	}
	if !strings.Contains(sel.lastReplyScript(), "'.bubble.left'") {
		t.Fatalf("reply script should query assistant bubbles: %s", sel.lastReplyScript())
	}
}
