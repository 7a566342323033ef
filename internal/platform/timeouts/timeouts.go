// Package timeouts defines shared timeout constants used across the match
// harness. Centralizing these values keeps command defaults and library
// defaults from drifting apart.
package timeouts

import "time"

// Move caps how long a player may take to answer one move request.
const Move = 10 * time.Second

// Ready caps how long a freshly launched player may take to announce
// readiness.
const Ready = 10 * time.Second

// TerminateGrace is how long a player gets to exit after its input is closed
// before it is killed.
const TerminateGrace = 5 * time.Second

// Shutdown limits how long telemetry and storage get to flush on exit.
const Shutdown = 5 * time.Second

// Write caps how long a one-way message may wait for a player to read its
// input.
const Write = 5 * time.Second
