// Package timeouts defines shared timeout constants used across the bot.
package timeouts

import "time"

// GatewayOpen caps the wait for the chat gateway session handshake.
const GatewayOpen = 30 * time.Second

// CachePrime caps the time spent priming invite snapshots for one guild.
const CachePrime = 15 * time.Second

// Shutdown limits how long servers wait for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second

// GatewayEvent bounds the work done for one inbound gateway event.
const GatewayEvent = 30 * time.Second

// HealthProbe bounds a container healthcheck against the local server.
const HealthProbe = 5 * time.Second

// AdminCall bounds one admin API call made from the command line.
const AdminCall = 10 * time.Second
