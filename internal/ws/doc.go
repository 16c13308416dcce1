// Package ws implements the /ws/stream WebSocket endpoint.
//
// A single Hub owns the client set from its run loop: clients register and
// unregister through channels, and only the loop ever closes a client's send
// channel. On connect a client receives the full fleet snapshot; after that
// the hub pushes "delta" frames carrying only the devices that changed since
// the last frame, and resyncs everyone with a fresh full snapshot when a
// device leaves the fleet. Quiet intervals produce no traffic. Ping/pong
// keepalives detect dead peers, and a client that cannot keep up with the
// push rate (full send buffer) is disconnected rather than allowed to stall
// the hub.
package ws
