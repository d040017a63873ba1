package messaging

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Request and response bodies travel as google.protobuf.Struct over the
// default proto codec. The Go types in this package fix the field names;
// the Struct mirrors their JSON form, so timestamps are RFC 3339 strings
// and numbers are doubles.

// encodeBody converts a typed message into its Struct body.
func encodeBody(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	body := &structpb.Struct{}
	if err := protojson.Unmarshal(b, body); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return body, nil
}

// decodeBody fills v from a Struct body. Unknown fields are ignored.
func decodeBody(body *structpb.Struct, v any) error {
	b, err := protojson.Marshal(body)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
