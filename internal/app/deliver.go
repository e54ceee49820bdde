package app

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/time/rate"

	"remindbot/internal/broadcast"
	kit "remindbot/internal/transport"
)

// deliverer sends the broadcast text to one chat, paced by a shared limiter
// so large batches stay under the Bot API flood limits.
type deliverer struct {
	adapter kit.Adapter
	lim     *rate.Limiter
}

func newDeliverer(ad kit.Adapter, perSec int) *deliverer {
	if perSec <= 0 {
		perSec = 25
	}
	return &deliverer{adapter: ad, lim: rate.NewLimiter(rate.Limit(perSec), perSec)}
}

// Deliver implements broadcast.DeliveryFunc. A recipient that is not a
// base-10 chat id is a delivery failure.
func (d *deliverer) Deliver(ctx context.Context, to broadcast.Recipient, text string) error {
	chatID, err := strconv.ParseInt(string(to), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", to, err)
	}
	if err := d.lim.Wait(ctx); err != nil {
		return err
	}
	_, err = d.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, nil)
	return err
}
