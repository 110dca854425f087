package commsutil

import "encoding/json"

// EncodePayload serializes a value to JSON bytes for a COMMS message.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes a COMMS message body into a new T.
func DecodePayload[T any](data []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
