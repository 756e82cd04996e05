package main

import (
	"github.com/mevshield/coordinator/internal/pkg/builder"
)

func main() {
	server, err := builder.NewServer("internal/pkg/config/job_sepolia.yaml")
	if err != nil {
		panic(err)
	}
	if err := server.Run(); err != nil {
		panic(err)
	}
}
