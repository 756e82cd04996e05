package main

import (
	"github.com/mevshield/coordinator/internal/pkg/builder"
)

func main() {
	worker, err := builder.NewWorker("internal/pkg/config/job_sepolia.yaml")
	if err != nil {
		panic(err)
	}
	if err := worker.Run(); err != nil {
		panic(err)
	}
}
