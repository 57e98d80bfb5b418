// Package events provides the trial lifecycle event bus.
//
// The search coordinator emits an event on every trial state change
// without knowing which consumers process them, keeping the scheduling
// loop decoupled from logging, reporting, and the status API.
package events
