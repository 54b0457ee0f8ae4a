package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agrisaarthi/internal/domain"
	"agrisaarthi/internal/provider"
)

// Command is a parsed "/name args..." line.
type Command struct {
	Name string
	Args []string
	Raw  string
}

// CommandResult is what a front-end shows for a handled command. Messages
// produced by the command arrive separately as message.appended events.
type CommandResult struct {
	Response string
	Handled  bool
}

// ParseCommand returns nil when text is not a command.
func ParseCommand(text string) *Command {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil
	}
	name := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	// Telegram appends the bot name in groups: /tip@AgriBot
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return &Command{Name: name, Args: parts[1:], Raw: text}
}

// Appends reports whether the command adds messages to the conversation.
func (c *Command) Appends() bool {
	switch c.Name {
	case "farmer", "gardener", "voice":
		return true
	}
	return false
}

// HandleCommand runs the commands every front-end shares. Unknown commands
// come back with Handled=false for the front-end to deal with.
func (h *Hub) HandleCommand(ctx context.Context, chatID string, cmd *Command) CommandResult {
	router := h.Router(chatID)
	switch cmd.Name {
	case "help", "start":
		return handled(helpText(router.Role()))

	case "farmer", "gardener":
		role, _ := domain.ParseRole(cmd.Name)
		if _, err := router.Select(ctx, role); err != nil {
			if errors.Is(err, domain.ErrRoleSet) {
				return handled(fmt.Sprintf("You are chatting as a %s. Send /back to switch roles.", router.Role()))
			}
			return handled("Could not start the chat: " + err.Error())
		}
		return handled("")

	case "back":
		if router.Role() == domain.RoleUnset {
			return handled(roleChoice)
		}
		if err := router.Back(); err != nil {
			h.cfg.Logger.Warn("back", "chat", chatID, "err", err)
		}
		return handled("Conversation cleared.\n" + roleChoice)

	case "tip":
		role := router.Role()
		if len(cmd.Args) > 0 {
			r, err := domain.ParseRole(cmd.Args[0])
			if err != nil {
				return handled("Usage: /tip [farmer|gardener]")
			}
			role = r
		}
		if role == domain.RoleUnset {
			return handled(roleChoice)
		}
		return handled(h.Tip(role))

	case "weather":
		w, tip, ok := h.Weather()
		if !ok {
			return handled("Weather is not available.")
		}
		return handled(FormatWeather(w, tip))

	case "voice":
		screen, err := router.Screen()
		if err != nil {
			return handled(roleChoice)
		}
		if err := screen.SubmitVoice(ctx); err != nil {
			return handled(Notice(err))
		}
		return handled("")
	}
	return CommandResult{}
}

func handled(resp string) CommandResult {
	return CommandResult{Response: resp, Handled: true}
}

const roleChoice = "Choose your role: /farmer or /gardener"

// FormatWeather renders a reading and its tip on two lines.
func FormatWeather(w provider.Weather, tip string) string {
	return fmt.Sprintf("%s: %.0f°C, %.0f%% humidity, %s\n%s", w.City, w.TempC, w.Humidity, w.Condition, tip)
}

// Notice turns a chat error into a short line for the user.
func Notice(err error) string {
	switch {
	case errors.Is(err, domain.ErrBusy):
		return "Please wait for the current reply."
	case errors.Is(err, domain.ErrUnsupported):
		return "Voice and photo input are only available in farmer mode."
	case errors.Is(err, domain.ErrNoRole):
		return roleChoice
	case errors.Is(err, domain.ErrClosed):
		return "This conversation has ended."
	case errors.Is(err, domain.ErrNotImage):
		return "Please send an image file."
	case errors.Is(err, domain.ErrAlreadyPlaying):
		return "Audio is already playing."
	default:
		return "Something went wrong: " + err.Error()
	}
}

func helpText(role domain.Role) string {
	var sb strings.Builder
	sb.WriteString("AgriSaarthi commands:\n")
	sb.WriteString("/farmer, /gardener - pick a role\n")
	sb.WriteString("/back - leave the chat and discard it\n")
	sb.WriteString("/tip [role] - an offline tip\n")
	sb.WriteString("/weather - local weather and a field tip\n")
	if role == domain.RoleFarmer || role == domain.RoleUnset {
		sb.WriteString("/voice - record a voice question (farmer)\n")
		sb.WriteString("Send a photo to get a crop diagnosis (farmer)\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
