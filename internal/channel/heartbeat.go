package channel

import (
	"strings"

	"github.com/mfratelli/dualgate/internal/metrics"
	"github.com/mfratelli/dualgate/internal/natsbus"
	"github.com/nats-io/nats.go"
)

// WatchHeartbeats records worker heartbeats into beats. Workers publish
// on channel.<name>.heartbeat at their own cadence; anything malformed
// is ignored.
func WatchHeartbeats(client *natsbus.Client, beats *metrics.Heartbeats) (*nats.Subscription, error) {
	return client.Subscribe(natsbus.TopicChannelHeartbeats, func(msg *nats.Msg) {
		parts := strings.Split(msg.Subject, ".")
		if len(parts) != 3 {
			return
		}
		beats.Touch(parts[1])
	})
}
