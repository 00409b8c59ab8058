// Package notify renders and delivers best-effort channel notifications.
package notify

import (
	"context"
	"log"
	"strings"

	"github.com/opshop/guildshop/internal/services/shop/gateway"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Embed colors.
const (
	ColorSuccess = 0x57F287
	ColorInfo    = 0x5865F2
	ColorWarning = 0xFEE75C
	ColorDanger  = 0xED4245
	ColorGold    = 0xF1C40F
)

type messageSender interface {
	SendMessage(ctx context.Context, channelID string, message gateway.Message) error
}

// Notifier sends structured messages to configured channels. Delivery
// failures are logged and never returned.
type Notifier struct {
	sender  messageSender
	printer *message.Printer
	logf    func(string, ...any)
}

// New builds a notifier that formats numbers for tag.
func New(sender messageSender, tag language.Tag, logf func(string, ...any)) *Notifier {
	if logf == nil {
		logf = log.Printf
	}
	return &Notifier{
		sender:  sender,
		printer: message.NewPrinter(tag),
		logf:    logf,
	}
}

// Send delivers msg to channelID and reports whether it was delivered. An
// empty channel means the feature is not configured and is skipped silently.
func (n *Notifier) Send(ctx context.Context, channelID string, msg gateway.Message) bool {
	if n == nil || n.sender == nil {
		return false
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return false
	}
	if err := n.sender.SendMessage(ctx, channelID, msg); err != nil {
		n.logf("[notify] send %q to channel %s: %v", msg.Title, channelID, err)
		return false
	}
	return true
}

// Sprintf formats with locale-aware number grouping.
func (n *Notifier) Sprintf(format string, args ...any) string {
	if n == nil || n.printer == nil {
		return message.NewPrinter(language.English).Sprintf(format, args...)
	}
	return n.printer.Sprintf(format, args...)
}

// Mention renders a user mention.
func Mention(userID string) string {
	if strings.TrimSpace(userID) == "" {
		return "unknown"
	}
	return "<@" + userID + ">"
}

// RoleMention renders a role mention.
func RoleMention(roleID string) string {
	return "<@&" + roleID + ">"
}
