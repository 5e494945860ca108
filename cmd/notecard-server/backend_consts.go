package main

import "time"

const (
	// Backoff after a transport failure before the next transaction.
	txBackoffMin = 20 * time.Millisecond
	txBackoffMax = 500 * time.Millisecond
	// reopenInterval paces attempts to reopen a vanished serial device.
	reopenInterval = time.Second
)
