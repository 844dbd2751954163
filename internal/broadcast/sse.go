package broadcast

import (
	"context"
	"encoding/json"

	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog/log"
)

// Stream is the SSE stream name carrying timer snapshots.
const Stream = "timer"

// NewSSEServer creates an SSE server with the timer stream and no replay.
func NewSSEServer() *sse.Server {
	server := sse.New()
	server.AutoReplay = false
	server.AutoStream = false
	server.CreateStream(Stream)
	return server
}

// ForwardSSE publishes every hub snapshot to the SSE timer stream until
// ctx is done.
func ForwardSSE(ctx context.Context, hub *Hub, server *sse.Server) {
	ch, id := hub.Subscribe(64)
	defer hub.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				log.Error().Err(err).Msg("broadcast: encode snapshot")
				continue
			}
			server.Publish(Stream, &sse.Event{Data: data})
		}
	}
}
