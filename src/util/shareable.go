package util

import (
	"encoding/base64"
	"fmt"
)

// EncodeShareableID turns an aggregator account id into the id a user hands
// out to receive transfers.
func EncodeShareableID(accountID string) string {
	return base64.StdEncoding.EncodeToString([]byte(accountID))
}

func DecodeShareableID(shareableID string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(shareableID)
	if err != nil {
		return "", fmt.Errorf("decode shareable id: %w", err)
	}
	return string(raw), nil
}
