package protocol

import (
	"encoding/json"
	"fmt"
)

// Marshal encodes e as a flat JSON object with a "type" field.
func Marshal(e Event) ([]byte, error) {
	switch ev := e.(type) {
	case Status:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			Status
		}{ev.Kind(), ev})
	case Progress:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			Progress
		}{ev.Kind(), ev})
	case Step:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			Step
		}{ev.Kind(), ev})
	case BrowserURL:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			BrowserURL
		}{ev.Kind(), ev})
	case Screenshot:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			Screenshot
		}{ev.Kind(), ev})
	case Complete:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			Complete
		}{ev.Kind(), ev})
	case Error:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			Error
		}{ev.Kind(), ev})
	default:
		return nil, fmt.Errorf("protocol: unsupported event %T", e)
	}
}

// UnknownKindError is returned by Unmarshal for an unrecognized discriminator.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("protocol: unknown event type %q", string(e.Kind))
}

// Unmarshal decodes one event. Unknown kinds yield *UnknownKindError so that
// consumers can skip them.
func Unmarshal(data []byte) (Event, error) {
	var base struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}

	switch base.Type {
	case KindStatus:
		return decodeAs[Status](data)
	case KindProgress:
		return decodeAs[Progress](data)
	case KindStep:
		return decodeAs[Step](data)
	case KindBrowserURL:
		return decodeAs[BrowserURL](data)
	case KindScreenshot:
		return decodeAs[Screenshot](data)
	case KindComplete:
		ev, err := decodeAs[Complete](data)
		if err != nil {
			return nil, err
		}
		c := ev.(Complete)
		if string(c.Result) == "null" {
			c.Result = nil
		}
		return c, nil
	case KindError:
		return decodeAs[Error](data)
	default:
		return nil, &UnknownKindError{Kind: base.Type}
	}
}

func decodeAs[T Event](data []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", v.Kind(), err)
	}
	return v, nil
}
