package watcher

import (
	"fmt"
	"html"

	"kickbot/internal/channel"
	"kickbot/internal/kick"
	"kickbot/internal/storage"
)

const (
	fallbackTitle    = "untitled"
	fallbackCategory = "unknown"
)

// RenderLive builds the HTML body announcing that ch went live.
func RenderLive(ch storage.Channel, st kick.Status, channelURL string) string {
	title := st.Title
	if title == "" {
		title = fallbackTitle
	}
	category := st.Category
	if category == "" {
		category = fallbackCategory
	}
	return fmt.Sprintf(
		"🟢 <b>%s</b> is live on Kick!\n\n<b>Title:</b> %s\n<b>Category:</b> %s\n\n%s",
		html.EscapeString(ch.Name()),
		html.EscapeString(title),
		html.EscapeString(category),
		html.EscapeString(channel.URL(channelURL, ch.Key)),
	)
}
