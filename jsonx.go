package main

import (
	"github.com/bytedance/sonic"
)

// fastJSONMarshal encodes v as JSON using the Sonic encoder. All API
// responses and schedule documents go through these wrappers so the encoder
// can be swapped in one place.
func fastJSONMarshal(v interface{}) ([]byte, error) {
	return sonic.Marshal(v)
}

// fastJSONUnmarshal decodes JSON data into v using Sonic. It is a drop-in
// replacement for encoding/json.Unmarshal for typical Go structs.
func fastJSONUnmarshal(data []byte, v interface{}) error {
	return sonic.Unmarshal(data, v)
}
