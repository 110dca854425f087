package registry

import (
	"context"

	"github.com/mitchellh/mapstructure"
)

// DecodeInput copies a payload map into out, a pointer to a struct with
// json tags. Numbers are converted weakly so JSON float64 and CBOR
// integers land in int fields alike.
func DecodeInput(payload map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(payload)
}

// Typed adapts a handler taking a decoded input struct. A payload that
// does not decode into T fails with INVALID_ARGUMENT before fn runs.
func Typed[T any](fn func(ctx context.Context, req *Request, in T) (*Result, error)) Handler {
	return func(ctx context.Context, req *Request) (*Result, error) {
		var in T
		if err := DecodeInput(req.Payload, &in); err != nil {
			return nil, InvalidArgument("%s: %v", req.Command, err)
		}
		return fn(ctx, req, in)
	}
}
