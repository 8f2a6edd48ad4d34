package model

import "time"

// Sample 是一条流量观测：某一时刻的流量计数。
type Sample struct {
	Traffic   int       `json:"traffic"`
	Timestamp time.Time `json:"timestamp"`
}
