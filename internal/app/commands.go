package app

import (
	"context"
	"strconv"

	"remindbot/internal/broadcast"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	"remindbot/pkg/tgui"
)

// commands is the command table, in menu order.
func (a *App) commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "activate daily messages", Handle: a.cmdStart},
		{Name: "magic", Description: "do magic", Handle: a.cmdMagic},
		{Name: "html", Description: "some html _mode example", Handle: a.cmdHTML},
		{Name: "help", Description: "show the help", Handle: a.cmdHelp},
		{Name: "stop", Description: "stop daily messages", Handle: a.cmdStop},
		{Name: "status", Description: "show broadcast status", Handle: a.cmdStatus},
	}
}

func (a *App) cmdStart(ctx context.Context, req *router.Request) error {
	a.Activate(req.Chat.ChatID)
	return req.Reply(ctx, startReply(a.settings.Schedule, a.settings.StartReply), nil)
}

func (a *App) cmdHelp(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, helpText(a.settings.Schedule), nil)
}

func (a *App) cmdMagic(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, a.magic.Text(), nil)
}

func (a *App) cmdHTML(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, htmlDemo().String(), &kit.SendOptions{ParseMode: tgui.ParseMode})
}

func (a *App) cmdStop(ctx context.Context, req *router.Request) error {
	if !a.Deactivate(req.Chat.ChatID) {
		return req.Reply(ctx, "This chat is not subscribed. Send /start to subscribe.", nil)
	}
	return req.Reply(ctx, "Daily messages disabled for this chat. Send /start to enable them again.", nil)
}

func (a *App) cmdStatus(ctx context.Context, req *router.Request) error {
	rc := broadcast.Recipient(strconv.FormatInt(req.Chat.ChatID, 10))
	txt := statusText(a.sched.Status(), a.reg.Contains(rc), a.settings.Schedule)
	return req.Reply(ctx, txt.String(), &kit.SendOptions{ParseMode: tgui.ParseMode, DisablePreview: true})
}
