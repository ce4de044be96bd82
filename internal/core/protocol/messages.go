// Package protocol defines the closed set of messages exchanged with
// clients and the envelope codec shared by every transport.
package protocol

// Kind tags a message type on the wire.
type Kind string

const (
	// client -> server
	KindHandshake      Kind = "handshake"
	KindPlayerPosition Kind = "player_position"
	KindClientSettings Kind = "client_settings"

	// both directions
	KindKeepAlive  Kind = "keep_alive"
	KindDisconnect Kind = "disconnect"

	// server -> client
	KindJoinGame    Kind = "join_game"
	KindChunkData   Kind = "chunk_data"
	KindUnloadChunk Kind = "unload_chunk"
)

// Message is implemented by every concrete message.
type Message interface {
	Kind() Kind
}

// Handshake must be the first message a client sends.
type Handshake struct {
	Username string `json:"username"`
}

// KeepAlive is broadcast by the server; clients echo the ID back.
type KeepAlive struct {
	ID int64 `json:"id"`
}

// PlayerPosition is sent by clients when they move.
type PlayerPosition struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	OnGround bool    `json:"on_ground"`
}

// ClientSettings changes the requested view distance.
type ClientSettings struct {
	ViewDistance int32 `json:"view_distance"`
}

// Disconnect is sent in both directions before the connection closes.
type Disconnect struct {
	Reason string `json:"reason"`
}

// JoinGame tells a client which entity it controls and where it spawned.
type JoinGame struct {
	Entity       uint64  `json:"entity"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Z            float64 `json:"z"`
	ViewDistance int32   `json:"view_distance"`
}

// ChunkData carries the column heights of one chunk, row by row along X.
type ChunkData struct {
	X       int32    `json:"x"`
	Z       int32    `json:"z"`
	Heights []uint16 `json:"heights"`
}

// UnloadChunk tells the client to forget a chunk that left its view.
type UnloadChunk struct {
	X int32 `json:"x"`
	Z int32 `json:"z"`
}

func (Handshake) Kind() Kind      { return KindHandshake }
func (KeepAlive) Kind() Kind      { return KindKeepAlive }
func (PlayerPosition) Kind() Kind { return KindPlayerPosition }
func (ClientSettings) Kind() Kind { return KindClientSettings }
func (Disconnect) Kind() Kind     { return KindDisconnect }
func (JoinGame) Kind() Kind       { return KindJoinGame }
func (ChunkData) Kind() Kind      { return KindChunkData }
func (UnloadChunk) Kind() Kind    { return KindUnloadChunk }
