package realtime

import (
	"dealership_portal/platform/config"
	"dealership_portal/platform/logger"

	"github.com/redis/go-redis/v9"
)

// SourcesFromConfig builds the enabled push sources. The returned cleanup
// releases their connections; it is never nil.
func SourcesFromConfig(cfg config.RealtimeConfig, token string, log *logger.Logger) ([]Source, func(), error) {
	var (
		sources []Source
		client  *redis.Client
	)
	cleanup := func() {
		if client != nil {
			_ = client.Close()
		}
	}

	if cfg.IsSocketEnabled() {
		sources = append(sources, NewSocketSource(cfg.GetRealtimeSocketURL(), token, cfg.GetRealtimeReconnectDelay(), log))
	}

	if cfg.IsRedisEnabled() {
		c, err := NewRedisClient(cfg.GetRedisURL())
		if err != nil {
			return nil, cleanup, err
		}
		client = c
		sources = append(sources, NewRedisSource(client, cfg.GetRealtimeRedisChannel(), log))
	}

	if len(sources) == 0 {
		log.Warn("no realtime source configured; boards refresh only on demand")
	}
	return sources, cleanup, nil
}
