package server

import (
	"log"
	"time"

	"github.com/example/ntfsbridge/pkg/efi"
)

// LogRequest logs an incoming request.
func LogRequest(op string, reqID uint64, clientAddr string) {
	log.Printf("[REQ %d] %s from %s", reqID, op, clientAddr)
}

// LogResponse logs the outcome of a request.
func LogResponse(op string, reqID uint64, status efi.Status, duration time.Duration) {
	log.Printf("[RSP %d] %s status=%v duration=%s", reqID, op, status, duration)
}

// LogError logs a request that failed before producing a response.
func LogError(op string, reqID uint64, err error) {
	log.Printf("[ERR %d] %s: %v", reqID, op, err)
}
