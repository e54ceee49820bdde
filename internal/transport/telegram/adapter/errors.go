package adapter

import (
	"context"
	"errors"
	"strconv"

	tele "gopkg.in/telebot.v4"
)

// FailureReason maps a send error to a short, stable label for logs.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, tele.ErrBlockedByUser):
		return "blocked"
	case errors.Is(err, tele.ErrUserIsDeactivated):
		return "deactivated"
	case errors.Is(err, tele.ErrKickedFromGroup),
		errors.Is(err, tele.ErrKickedFromSuperGroup),
		errors.Is(err, tele.ErrKickedFromChannel):
		return "kicked"
	case errors.Is(err, tele.ErrNotStartedByUser):
		return "not_started"
	case errors.Is(err, tele.ErrChatNotFound):
		return "chat_not_found"
	}

	var fe tele.FloodError
	if errors.As(err, &fe) {
		return "flood"
	}
	var fp *tele.FloodError
	if errors.As(err, &fp) {
		return "flood"
	}
	var te *tele.Error
	if errors.As(err, &te) && te.Code != 0 {
		return "api_" + strconv.Itoa(te.Code)
	}
	return "error"
}
