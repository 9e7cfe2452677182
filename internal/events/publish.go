package events

import (
	"context"
	"time"

	"github.com/neopharm/pharmacy/pkg/logging"
)

const publishTimeout = 5 * time.Second

// Publish sends the event with a bounded timeout and only logs failures.
func Publish(ctx context.Context, p Publisher, topic, key string, event map[string]any) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.PublishEvent(ctx, topic, key, event); err != nil {
		logging.FromContext(ctx).Error("kafka_publish_error", "topic", topic, "type", event["type"], "error", err)
	}
}
