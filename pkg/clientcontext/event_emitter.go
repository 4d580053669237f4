package clientcontext

import (
	"context"

	"github.com/cuemby/oneclient/pkg/events"
	"github.com/cuemby/oneclient/pkg/transport"
	"github.com/cuemby/oneclient/pkg/wire"
)

// newReadEmitter adapts a Stream into an events.Emitter[events.ReadEvent],
// converting each aggregated batch into wire.ReadEvent frames. One frame per
// event in the batch: the provider-side aggregation expects individual
// counters/sizes, not a pre-summed total.
func newReadEmitter(stream *transport.Stream) events.Emitter[events.ReadEvent] {
	return func(batch []events.ReadEvent) {
		ctx := context.Background()
		for _, e := range batch {
			stream.Send(ctx, &wire.ClientMessage{ReadEvent: &wire.ReadEvent{
				FileID:  e.FileID,
				Counter: e.Counter,
				Size:    e.Size,
				Blocks:  toWireBlocks(e.Blocks),
			}})
		}
	}
}

// newWriteEmitter is the write-side counterpart of newReadEmitter.
func newWriteEmitter(stream *transport.Stream) events.Emitter[events.WriteEvent] {
	return func(batch []events.WriteEvent) {
		ctx := context.Background()
		for _, e := range batch {
			stream.Send(ctx, &wire.ClientMessage{WriteEvent: &wire.WriteEvent{
				FileID:   e.FileID,
				Counter:  e.Counter,
				Size:     e.Size,
				FileSize: e.FileSize,
				Blocks:   toWireBlocks(e.Blocks),
			}})
		}
	}
}

func toWireBlocks(blocks []events.Block) []wire.Block {
	if blocks == nil {
		return nil
	}
	out := make([]wire.Block, len(blocks))
	for i, b := range blocks {
		out[i] = wire.Block{Offset: b.Offset, Size: b.Size}
	}
	return out
}
