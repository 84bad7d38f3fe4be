package models

import (
	"encoding/json"
	"fmt"
)

const (
	MediaTypeJPEG = "image/jpeg"
	MediaTypePDF  = "application/pdf"
)

// UploadedFile is one file handed over by the surface. It is read-only to the pipeline.
type UploadedFile struct {
	Name      string
	MediaType string
	Data      []byte
}

type PayloadKind int

const (
	PayloadUnknown PayloadKind = iota
	PayloadImage               // base64 JPEG
	PayloadText                // extracted document text
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadImage:
		return "image"
	case PayloadText:
		return "text"
	default:
		return "unknown"
	}
}

func (k PayloadKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *PayloadKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	kind, err := StringToPayloadKind(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

func StringToPayloadKind(s string) (PayloadKind, error) {
	switch s {
	case "image":
		return PayloadImage, nil
	case "text":
		return PayloadText, nil
	default:
		return PayloadUnknown, fmt.Errorf("unknown payload kind %q", s)
	}
}

// Payload is the model-ready form of an uploaded file. Produced once per upload and never mutated.
type Payload struct {
	Kind PayloadKind `json:"kind"`

	Data string `json:"data"`

	Source string `json:"source,omitempty"`
}

// ModelResponse is either the model's answer or a fixed failure message.
type ModelResponse string
