package docai

import (
	"fmt"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/protobuf/encoding/protojson"
)

// DocumentJSON serializes a Document AI response so it can be reused without
// re-processing.
func DocumentJSON(doc *documentaipb.Document) (string, error) {
	data, err := protojson.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding Document AI response: %w", err)
	}
	return string(data), nil
}

// DocumentFromJSON loads a previously saved Document AI response.
func DocumentFromJSON(data []byte) (*documentaipb.Document, error) {
	var doc documentaipb.Document
	opts := protojson.UnmarshalOptions{DiscardUnknown: true}
	if err := opts.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding Document AI JSON: %w", err)
	}
	return &doc, nil
}
