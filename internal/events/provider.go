package events

import (
	"fmt"
	"strings"

	"github.com/gitoutofhere7/japan-post-demo/internal/common/config"
	"github.com/gitoutofhere7/japan-post-demo/internal/common/logger"
	"github.com/gitoutofhere7/japan-post-demo/internal/events/bus"
)

// Provide builds the configured event bus: NATS when a URL is set, otherwise
// the in-memory bus. The returned cleanup closes it.
func Provide(cfg config.EventsConfig, log *logger.Logger) (bus.EventBus, func(), error) {
	if strings.TrimSpace(cfg.NATSURL) != "" {
		natsBus, err := bus.NewNATSEventBus(cfg, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize NATS event bus: %w", err)
		}
		return natsBus, natsBus.Close, nil
	}

	memBus := bus.NewMemoryEventBus(log)
	return memBus, memBus.Close, nil
}
