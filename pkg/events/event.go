package events

// Block is a half-open byte interval [Offset, Offset+Size), mirroring
// wire.Block for the in-process representation events are aggregated in
// before being translated to the wire envelope at send time.
type Block struct {
	Offset int64
	Size   int64
}

// ReadEvent reports bytes read from a file.
type ReadEvent struct {
	FileID  string
	Counter uint64
	Size    int64
	Blocks  []Block
}

// mergeRead merges two same-file read events, summing counters and bytes
// and concatenating the observed blocks (coalescing is a server-side
// concern; the client forwards the raw interval list).
func mergeRead(a, b ReadEvent) ReadEvent {
	a.Counter += b.Counter
	a.Size += b.Size
	a.Blocks = append(a.Blocks, b.Blocks...)
	return a
}

// WriteEvent reports bytes written to a file. A truncation is represented
// as a WriteEvent with Offset/Size-bearing Blocks empty and only FileSize
// set, rather than as a distinct event type.
type WriteEvent struct {
	FileID   string
	Counter  uint64
	Size     int64
	FileSize int64
	Blocks   []Block
}

// NewTruncateEvent builds the WriteEvent shape of a truncation.
func NewTruncateEvent(fileID string, fileSize int64, counter uint64) WriteEvent {
	return WriteEvent{FileID: fileID, Counter: counter, FileSize: fileSize}
}

// mergeWrite merges two same-file write events: counters and sizes sum,
// fileSize takes the latest (most recent truncation or extension wins), and
// blocks accumulate then get clamped to [0, fileSize) since a later
// truncate can shrink what range is still valid.
func mergeWrite(a, b WriteEvent) WriteEvent {
	a.Counter += b.Counter
	a.Size += b.Size
	a.FileSize = b.FileSize
	a.Blocks = clampBlocks(append(a.Blocks, b.Blocks...), a.FileSize)
	return a
}

func clampBlocks(blocks []Block, fileSize int64) []Block {
	if fileSize < 0 {
		return nil
	}
	out := blocks[:0]
	for _, b := range blocks {
		end := b.Offset + b.Size
		if end > fileSize {
			end = fileSize
		}
		if end <= b.Offset {
			continue
		}
		out = append(out, Block{Offset: b.Offset, Size: end - b.Offset})
	}
	return out
}
