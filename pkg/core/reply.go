// pkg/core/reply.go
package core

// Reply statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ReplyStats describes the work behind a reply.
type ReplyStats struct {
	ComputationTime float64 `json:"computationTime"`
	Iterations      uint32  `json:"iterations"`
	IsValid         bool    `json:"isValid"`
	CoverageRate    float64 `json:"coverageRate"`
}

// Reply answers exactly one ingested request. Replies are built fresh per
// request and not touched after they are handed to the transport.
type Reply struct {
	Status      string            `json:"status"`
	Timestamp   float64           `json:"timestamp"`
	BestFitness float64           `json:"bestFitness"`
	Assignment  map[uint32]uint32 `json:"assignment"`
	NPlatforms  uint32            `json:"nPlatforms"`
	NTargets    uint32            `json:"nTargets"`
	Stats       ReplyStats        `json:"stats"`
	TTLSec      float64           `json:"ttlSec"`
	ErrorMsg    string            `json:"errorMsg"`
}
