// Package timeouts defines shared timeout constants used by the interview
// binaries.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight work during graceful
// shutdown.
const Shutdown = 5 * time.Second

// ActorReply caps how long a transport waits for a session actor to answer.
const ActorReply = 10 * time.Second

// ClientRequest caps a single CLI request to the lifecycle API.
const ClientRequest = 15 * time.Second

// WSFrameRead is the idle deadline applied to websocket reads.
const WSFrameRead = 2 * time.Minute
