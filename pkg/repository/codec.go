package repository

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

func marshalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode value")
	}
	return raw, nil
}

func unmarshalJSON(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return goerr.Wrap(err, "failed to decode value")
	}
	return nil
}
