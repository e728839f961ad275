package runtime

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"chat-hub/domain"

	"github.com/gabriel-vasile/mimetype"
)

// encodeFilePayload serializes the structured payload into the stored
// body. The stored form must stay valid JSON: history replay detects
// file entries by attempting to decode the body.
func encodeFilePayload(file domain.FilePayload) (string, error) {
	bytes, err := json.Marshal(file)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// sniffFileType detects the content type from the attachment bytes
// inside the client's data URL. Clients may omit or misstate the type;
// the sniffed value fills the gap when the declared one is empty.
// Returns "" when the data URL cannot be decoded.
func sniffFileType(dataURL string) string {
	_, encoded, ok := strings.Cut(dataURL, ",")
	if !ok {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ""
	}
	return mimetype.Detect(raw).String()
}
