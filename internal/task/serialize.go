package task

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingTaskID is returned when a frame has no task_id.
var ErrMissingTaskID = errors.New("event has no task_id")

// envelope is the discriminator read before decoding the variant.
type envelope struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
}

// DecodeEvent parses one stream frame.
//
// Frames with an unrecognized type decode to Unknown rather than failing, so
// newer backends do not break older clients. An error is returned only for
// malformed JSON or a frame without a task id.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if env.TaskID == "" {
		return nil, ErrMissingTaskID
	}

	var (
		ev  Event
		err error
	)
	switch env.Type {
	case EventStatusChanged:
		ev, err = decodeAs[StatusChanged](data)
	case EventProgress:
		ev, err = decodeAs[Progress](data)
	case EventConsultationStarted:
		ev, err = decodeAs[ConsultationStarted](data)
	case EventConsultationCompleted:
		ev, err = decodeAs[ConsultationCompleted](data)
	case EventCompleted:
		ev, err = decodeAs[Completed](data)
	case EventMetadataUpdated:
		ev, err = decodeAs[MetadataUpdated](data)
	case EventDeleted:
		ev, err = decodeAs[Deleted](data)
	default:
		var h Header
		if err := json.Unmarshal(data, &h); err != nil {
			return nil, fmt.Errorf("decode %q event: %w", env.Type, err)
		}
		raw := make([]byte, len(data))
		copy(raw, data)
		return Unknown{Header: h, Type: env.Type, Raw: raw}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s event: %w", env.Type, err)
	}
	return ev, nil
}

func decodeAs[T Event](data []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeEvent writes an event in the stream's wire format.
func EncodeEvent(ev Event) ([]byte, error) {
	if u, ok := ev.(Unknown); ok {
		if len(u.Raw) > 0 {
			return u.Raw, nil
		}
		return json.Marshal(struct {
			Type string `json:"type"`
			Header
		}{Type: u.Type, Header: u.Header})
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Kind(), err)
	}

	// Splice the discriminator into the variant's object.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Kind(), err)
	}
	kind, _ := json.Marshal(ev.Kind())
	fields["type"] = kind
	return json.Marshal(fields)
}
