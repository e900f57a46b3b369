package utils

import (
	json "github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
)

// JsonString encodes obj on one line for log fields. It returns "" when obj
// cannot be encoded.
func JsonString(obj any) string {
	data, err := json.Marshal(obj)
	if err != nil {
		log.Debug().Err(err).Msg("[Json] encode failed")
		return ""
	}
	return string(data)
}

// JsonIndent encodes obj for printing. Map keys are sorted so device props
// come out in a stable order.
func JsonIndent(obj any) string {
	data, err := json.ConfigStd.MarshalIndent(obj, "", "  ")
	if err != nil {
		log.Debug().Err(err).Msg("[Json] encode failed")
		return ""
	}
	return string(data)
}

// JsonMessage encodes obj as a {"type": ..., "data": ...} envelope.
func JsonMessage(kind string, obj any) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type": kind,
		"data": obj,
	})
}
