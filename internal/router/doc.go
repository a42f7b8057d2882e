// Package router implements the Event Router.
//
// The router is the Connection Manager's MessageHandler. It decodes each
// inbound frame and hands click events to the listeners registered for the
// event's exact topic, synchronously and in registration order. Events for
// topics nobody listens to are dropped.
package router
