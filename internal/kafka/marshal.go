package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/ariefcatur/go-bizops/internal/events"
)

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func UnmarshalEnvelope(b []byte) (events.Envelope, error) {
	var env events.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

func UnmarshalChange(b []byte) (docstore.Change, error) {
	var ch docstore.Change
	if err := json.Unmarshal(b, &ch); err != nil {
		return ch, fmt.Errorf("decode change: %w", err)
	}
	return ch, nil
}
