// Package wire defines the provider wire protocol envelopes. Each envelope
// carries at most one populated variant field, mirroring the oneof pattern
// of a protobuf schema without requiring a protoc run (see DESIGN.md for
// why codegen was skipped in favor of hand-written envelopes plus a thin
// grpc codec in codec.go).
package wire

import "time"

// EventKind names the three local event variants: read, write and truncate.
type EventKind int

const (
	EventKindRead EventKind = iota
	EventKindWrite
	EventKindTruncate
)

// Block is a half-open byte interval [Offset, Offset+Size).
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

// WriteEvent reports bytes written to a file, including truncations
// (offset=0, size=0, only FileSize set).
type WriteEvent struct {
	FileID   string
	Counter  uint64
	Size     int64
	FileSize int64
	Blocks   []Block
}

// SubscriptionKind enumerates the subscription classes a client can request.
type SubscriptionKind int

const (
	SubscriptionFileAttr SubscriptionKind = iota
	SubscriptionFileLocation
	SubscriptionPermissionChanged
	SubscriptionReadEvents
	SubscriptionWriteEvents
)

// SubscriptionRequest asks the server to install a subscription.
type SubscriptionRequest struct {
	Kind      SubscriptionKind
	FileID    string // empty for non-file-scoped kinds
	Counter   uint64 // emission counter threshold, 0 = unset
	TimeMs    uint64 // emission time threshold in ms, 0 = unset
	SizeBytes uint64 // emission size threshold, 0 = unset
}

// SubscriptionCancel asks the server to revoke a previously installed subscription.
type SubscriptionCancel struct {
	ID uint64
}

// HandshakeRequest is the client's opening message on a new session.
type HandshakeRequest struct {
	Hostname        string
	SessionID       string
	EnvVars         map[string]string
	ProtocolVersion uint32

	// At most one of these is set: TokenHashBase64 for token sessions,
	// CertConfirmation for a certificate session answering
	// CERT_CONFIRMATION_REQUIRED, neither for a plain certificate handshake.
	CertConfirmation string // non-empty when confirming CERT_CONFIRMATION_REQUIRED
	TokenHashBase64  string
}

// HandshakeStatus enumerates the outcomes of a handshake attempt.
type HandshakeStatus int

const (
	HandshakeOK HandshakeStatus = iota
	HandshakeNoUserFound
	HandshakeCertConfirmationRequired
	HandshakeInvalidSession
)

// HandshakeResponse is the server's reply to a HandshakeRequest.
type HandshakeResponse struct {
	SessionID       string
	Status          HandshakeStatus
	ProtocolVersion uint32
}

// EventSubscriptionUpdate is a server push installing, renewing, or
// cancelling a read/write event subscription.
type EventSubscriptionUpdate struct {
	ID         uint64
	Kind       SubscriptionKind
	FileID     string
	Counter    uint64
	TimeMs     uint64
	SizeBytes  uint64
	Cancelled  bool
}

// FileLocationPush is a server push carrying an updated file location.
type FileLocationPush struct {
	FileID          string
	StorageID       string
	StorageFileID   string
	ValidForSeconds int64
}

// FileAttrChangedPush is a server push invalidating cached attributes.
type FileAttrChangedPush struct {
	FileID string
}

// PermissionChangedPush is a server push invalidating cached permissions.
type PermissionChangedPush struct {
	FileID string
}

// MessageStreamInfo tags an outbound message with its stream id and sequence.
type MessageStreamInfo struct {
	StreamID       uint64
	SequenceNumber uint64
}

// MessageRequestInfo asks the peer to retransmit messages in [Lo, Hi].
type MessageRequestInfo struct {
	StreamID uint64
	Lo       uint64
	Hi       uint64
}

// MessageAcknowledgementInfo acknowledges delivery up to and including Seq.
type MessageAcknowledgementInfo struct {
	StreamID uint64
	Seq      uint64
}

// EndOfStreamMarker closes out a logical stream.
type EndOfStreamMarker struct {
	StreamID uint64
}

// ClientMessage is the envelope for every client->server frame. Exactly one
// payload field is non-nil.
type ClientMessage struct {
	Stream *MessageStreamInfo

	Handshake               *HandshakeRequest
	ReadEvent                *ReadEvent
	WriteEvent               *WriteEvent
	Subscribe                *SubscriptionRequest
	SubscribeCancel          *SubscriptionCancel
	EndOfStream              *EndOfStreamMarker
	MessageRequest           *MessageRequestInfo
	MessageAcknowledgement   *MessageAcknowledgementInfo
}

// ServerMessage is the envelope for every server->client frame. Exactly one
// payload field is non-nil.
type ServerMessage struct {
	Handshake              *HandshakeResponse
	Subscription           *EventSubscriptionUpdate
	FileLocation           *FileLocationPush
	FileAttrChanged        *FileAttrChangedPush
	PermissionChanged      *PermissionChangedPush
	MessageRequest         *MessageRequestInfo
	MessageAcknowledgement *MessageAcknowledgementInfo
}

// Timestamped pairs an inbound ServerMessage with the time it was received,
// for diagnostics; it is not part of the wire format. pkg/transport does not
// construct it.
type Timestamped struct {
	Message   ServerMessage
	ReceivedAt time.Time
}
