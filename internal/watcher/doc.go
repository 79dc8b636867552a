// Package watcher turns raw filesystem notifications into settled change
// triggers.
//
// A Session owns the OS-level watch for a fixed set of paths and forwards
// notifications through a small bounded queue; under load the newest
// notifications are dropped rather than blocking the producer. A Debouncer
// consumes one session and delivers a single trigger per burst once a quiet
// window has elapsed after the last relevant notification.
package watcher
