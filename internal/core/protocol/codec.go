package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownKind = errors.New("unknown message kind")
	ErrMalformed   = errors.New("malformed message")
)

// envelope is the wire frame: {"kind": "...", "data": {...}}.
type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

var factories = map[Kind]func() Message{
	KindHandshake:      func() Message { return &Handshake{} },
	KindKeepAlive:      func() Message { return &KeepAlive{} },
	KindPlayerPosition: func() Message { return &PlayerPosition{} },
	KindClientSettings: func() Message { return &ClientSettings{} },
	KindDisconnect:     func() Message { return &Disconnect{} },
	KindJoinGame:       func() Message { return &JoinGame{} },
	KindChunkData:      func() Message { return &ChunkData{} },
	KindUnloadChunk:    func() Message { return &UnloadChunk{} },
}

// Encode wraps msg in an envelope.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	return json.Marshal(envelope{Kind: msg.Kind(), Data: data})
}

// Decode parses an envelope and returns the concrete message by value.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	factory, ok := factories[env.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	msg := factory()
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, msg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Kind, err)
		}
	}
	return deref(msg), nil
}

func deref(msg Message) Message {
	switch m := msg.(type) {
	case *Handshake:
		return *m
	case *KeepAlive:
		return *m
	case *PlayerPosition:
		return *m
	case *ClientSettings:
		return *m
	case *Disconnect:
		return *m
	case *JoinGame:
		return *m
	case *ChunkData:
		return *m
	case *UnloadChunk:
		return *m
	default:
		return msg
	}
}
