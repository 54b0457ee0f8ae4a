// Package render turns conversation messages into display bubbles and
// simulates audio playback.
package render

import (
	"strings"

	"agrisaarthi/internal/domain"
)

const timeLayout = "3:04 PM"

type Align string

const (
	AlignLeft  Align = "left"
	AlignRight Align = "right"
)

// Bubble is the view model of one message.
type Bubble struct {
	ID       string        `json:"id"`
	Sender   domain.Sender `json:"sender"`
	Align    Align         `json:"align"`
	Style    string        `json:"style"`
	Label    string        `json:"label,omitempty"`
	Body     string        `json:"text"`
	AudioURL string        `json:"audio_url,omitempty"`
	Playable bool          `json:"playable"`
	Time     string        `json:"time"`
}

var styles = map[domain.Sender]string{
	domain.SenderFarmer:   "farmer",
	domain.SenderGardener: "gardener",
	domain.SenderAI:       "ai",
}

var labels = map[domain.MessageType]string{
	domain.TypeVoice: "Voice",
	domain.TypeImage: "Image",
}

// Render builds the bubble for m. User messages sit on the right; only
// assistant messages with audio can be played.
func Render(m domain.Message) Bubble {
	b := Bubble{
		ID:     m.ID,
		Sender: m.Sender,
		Align:  AlignLeft,
		Style:  styles[m.Sender],
		Label:  labels[m.Type],
		Body:   m.Text,
		Time:   m.Timestamp.Format(timeLayout),
	}
	if m.Sender.IsUser() {
		b.Align = AlignRight
	} else if m.AudioURL != "" {
		b.AudioURL = m.AudioURL
		b.Playable = true
	}
	if b.Style == "" {
		b.Style = "ai"
	}
	return b
}

func RenderAll(msgs []domain.Message) []Bubble {
	out := make([]Bubble, len(msgs))
	for i, m := range msgs {
		out[i] = Render(m)
	}
	return out
}

const rightIndent = "        "

// Text renders the bubble for a terminal. Right-aligned bubbles are indented.
func (b Bubble) Text() string {
	who := "AgriSaarthi"
	if b.Align == AlignRight {
		who = "You"
	}
	header := who + " · " + b.Time
	if b.Label != "" {
		header += " · " + b.Label
	}

	lines := []string{header}
	for _, l := range strings.Split(b.Body, "\n") {
		lines = append(lines, "  "+l)
	}
	if b.Playable {
		lines = append(lines, "  [audio]")
	}

	indent := ""
	if b.Align == AlignRight {
		indent = rightIndent
	}
	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if strings.TrimSpace(l) != "" {
			sb.WriteString(indent)
		}
		sb.WriteString(l)
	}
	return sb.String()
}
