// Package tgui builds Telegram HTML (ParseMode "HTML") from plain strings.
// Every helper escapes its input; H values are already safe.
package tgui
