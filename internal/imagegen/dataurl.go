package imagegen

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrInvalidDataURL = errors.New("invalid data url")

// EncodeDataURL arma un data URL base64 autocontenido.
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// IsDataURL indica si s es un data URL (imagen ya cacheada en el resultado).
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// DecodeDataURL separa el mime y los bytes de un data URL base64.
func DecodeDataURL(s string) (string, []byte, error) {
	if !IsDataURL(s) {
		return "", nil, ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, ErrInvalidDataURL
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, ErrInvalidDataURL
	}
	return mime, data, nil
}
