package phaseticker

import "github.com/mevshield/coordinator/internal/pkg/model"

type config struct {
	JobIntervalSec    uint64
	AutoCreate        bool
	BatchDurationMins uint64
}

var configs = map[uint64]config{
	model.ChainIDSepolia: {
		JobIntervalSec:    10,
		AutoCreate:        true,
		BatchDurationMins: 60,
	},
}
