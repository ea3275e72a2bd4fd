package main

import (
	"net/http"
	"os"
	"time"
)

func main() {
	addr := "http://localhost:8080"
	if v := os.Getenv("MOCKEXPECT_ADDR"); v != "" {
		addr = v
	}
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(addr + "/__admin/health")
	if err != nil || resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
