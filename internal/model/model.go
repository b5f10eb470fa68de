package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels are migrated on setup.
var DatabaseModels = []interface{}{
	&RelayInfo{},
	&RelayPerformance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// RelayInfo records each relay process start against the database
type RelayInfo struct {
	gorm.Model
	Hostname        string `json:"hostname" gorm:"size:127"`
	IngestEndpoint  string `json:"ingestEndpoint" gorm:"size:255"`
	BroadcastAddr   string `json:"broadcastAddr" gorm:"size:255"`
	ProtocolVersion string `json:"protocolVersion" gorm:"size:31"`
}

func (*RelayInfo) TableName() string {
	return "relay_infos"
}

// RelayPerformance is one monitor sample of the relay's counters
type RelayPerformance struct {
	ID              uint           `json:"id" gorm:"primarykey"`
	Time            time.Time      `json:"time" gorm:"index:idx_relayperformance_time"`
	RelayInfoID     uint           `json:"relayInfoId" gorm:"index:idx_relayperformance_relay_info_id"`
	State           string         `json:"state" gorm:"size:16"`
	Requests        uint64         `json:"requests"`
	Replies         uint64         `json:"replies"`
	DecodeFailures  uint64         `json:"decodeFailures"`
	UnknownVariants uint64         `json:"unknownVariants"`
	HandlerFailures uint64         `json:"handlerFailures"`
	RequestsByKind  datatypes.JSON `json:"requestsByKind"`
	Subscribers     int            `json:"subscribers"`
	SnapshotSeq     uint64         `json:"snapshotSeq"`
	Platforms       int            `json:"platforms"`
	Targets         int            `json:"targets"`
}

func (*RelayPerformance) TableName() string {
	return "relay_performances"
}
