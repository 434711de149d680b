package main

import (
	"net/http"
	"os"
)

func main() {
	url := "http://localhost:8080/__admin/health"
	if len(os.Args) > 1 {
		url = os.Args[1]
	}
	resp, err := http.Get(url)
	if err != nil || resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
