// Package markerbus fans the progress marker out to its viewers.
//
// # Overview
//
// The visualizer publishes one marker per tick; every connected viewer is a
// subscriber. Publish never blocks on a slow viewer:
//
//	"Drop markers, never queue. A newer marker supersedes every older one."
//
// # Drop Policies
//
// Subscribe registers a caller-owned channel with DropNew semantics: when the
// channel is full the new marker is dropped and counted.
//
// SubscribeLatest registers a Receiver with DropOld semantics: it always holds
// the most recent marker, and Next blocks until one newer than the caller's
// last sequence arrives. Websocket viewers use this policy.
//
//	bus := markerbus.New()
//	defer bus.Close()
//
//	recv, _ := bus.SubscribeLatest("viewer-1")
//	var seq uint64
//	for {
//	    m, next, ok := recv.Next(seq)
//	    if !ok {
//	        return // unsubscribed or bus closed
//	    }
//	    seq = next
//	    send(m)
//	}
//
// # Subscriber Count
//
// SubscriberCount lets the publisher withhold work while nobody listens.
//
// # Thread Safety
//
// All operations are safe for concurrent use.
package markerbus
