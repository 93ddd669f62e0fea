// Package events provides the engine's outbound notification channel: sync
// status transitions and module aggregate refresh requests are published as
// events to registered handlers, decoupling the sync machinery from UI and
// other consumers.
package events
