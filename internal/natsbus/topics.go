package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

func TopicChannelInvoke(channel string) string {
	return fmt.Sprintf("channel.%s.invoke", channel)
}

func TopicChannelCancel(channel string) string {
	return fmt.Sprintf("channel.%s.cancel", channel)
}

func TopicChannelHeartbeat(channel string) string {
	return fmt.Sprintf("channel.%s.heartbeat", channel)
}

func TopicEventsRequest(requestID string) string {
	return fmt.Sprintf("events.request.%s", requestID)
}

const (
	TopicEventsAll         = "events.>"
	TopicEventsMonitor     = "events.monitor"
	TopicChannelHeartbeats = "channel.*.heartbeat"
)
