package backplane

// Store-resident key names for the v2 protocol. The pending queue and
// the last-id scalar are shared between the HTTP producers and the
// elected ingestion worker; the index keys are written only inside the
// worker's transaction.
const (
	KeyMessageQueue = "v2_message_queue"
	KeyLastID       = "v2_last_id"
	KeyAllMessages  = "v2_messages"

	// AlertsTopic carries newly committed message ids to wake
	// long-pollers; purely an optimization, never a correctness signal.
	AlertsTopic = "alerts"

	grantIndexKey = "v2_grant_index"
)

func BusKey(bus string) string {
	return "v2_bus_" + bus
}

func ChannelKey(bus, channel string) string {
	return "v2_channel_" + bus + "_" + channel
}

func channelTokenKey(channel string) string {
	return "v2_channel_token_" + channel
}

func grantTokenRelKey(grantID string) string {
	return "v2_grant_tokens_" + grantID
}

// IndexEntry is the member stored in the global sorted set: the triple
// lets the cleanup sweep find the bus and channel indexes referencing
// an expired body without extra lookups.
func IndexEntry(bus, channel, id string) string {
	return bus + " " + channel + " " + id
}
