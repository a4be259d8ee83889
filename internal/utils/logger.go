package utils

import (
	"log"
	"strings"
)

// LogEvent emits one standardized line per domain event:
// [MODULE] action=... request_id=... msg=...
// Background jobs pass an empty request id. Keep codes, hold refs and
// coordinates out of msg; ids are enough to trace a booking.
func LogEvent(requestID, module, action, message string) {
	log.Printf("[%s] action=%s request_id=%s msg=%s",
		strings.ToUpper(strings.TrimSpace(module)), action, strings.TrimSpace(requestID), message)
}
