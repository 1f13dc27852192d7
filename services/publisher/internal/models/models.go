package models

import "time"

// FeedResponse models the JSON document the publisher replays.
type FeedResponse struct {
	Readings []Frame `json:"readings"`
	Network  string  `json:"network"`
}

// Frame is one node sample as produced by the field hardware. Values at or
// below -900 are sensor error sentinels.
type Frame struct {
	NodeID      int64      `json:"node_id"`
	Temperature *float64   `json:"temperature"`
	Humidity    *float64   `json:"humidity"`
	CO2         *float64   `json:"co2"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

// Message is the payload published on the ingest topic.
type Message struct {
	NodeID      int64     `json:"node_id"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	CO2         float64   `json:"co2"`
	Timestamp   time.Time `json:"timestamp"`
}

// LastPublished is the most recent message sent for a node.
type LastPublished struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	CO2         float64   `json:"co2"`
	TS          time.Time `json:"ts"`
}
