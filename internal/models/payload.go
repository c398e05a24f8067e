package models

import (
	"encoding/json"
)

// ForecastPayload is the decoded body of a JMA forecast response: one group
// for the short-term forecast and, for most offices, one for the weekly one
type ForecastPayload []ForecastGroup

// ForecastGroup is one publication inside the payload
type ForecastGroup struct {
	PublishingOffice string `json:"publishingOffice"`
	ReportDatetime   string `json:"reportDatetime"`
	// Nil when the key is absent; an empty slice when present but empty.
	TimeSeries []TimeSeriesBlock `json:"timeSeries"`
}

// TimeSeriesBlock describes one set of areas over a shared timestamp axis.
// Attribute slices on each area are aligned with TimeDefines by index.
type TimeSeriesBlock struct {
	TimeDefines []string   `json:"timeDefines"`
	Areas       []AreaItem `json:"areas"`
}

// AreaItem carries the per-area attribute series of a block
type AreaItem struct {
	Area     AreaRef  `json:"area"`
	Weathers []string `json:"weathers,omitempty"`
	Pops     []string `json:"pops,omitempty"`
}

// AreaRef names the area a series belongs to
type AreaRef struct {
	Name *string `json:"name"`
	Code string  `json:"code"`
}

// ParseForecastPayload decodes a forecast API body. Anything other than a
// JSON array of objects is a MalformedPayloadError.
func ParseForecastPayload(data []byte) (ForecastPayload, error) {
	var payload ForecastPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &MalformedPayloadError{Reason: "payload is not a list of forecast groups", Err: err}
	}
	if payload == nil {
		return nil, &MalformedPayloadError{Reason: "payload is null"}
	}
	return payload, nil
}
