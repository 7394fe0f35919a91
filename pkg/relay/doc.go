// Package relay implements the slide-remote hub: the session registry and
// message router that pair desktop agents with mobile controllers.
//
// Invariants:
// - Session codes are unique among live sessions.
// - A session never outlives its agent connection.
// - Removal is atomic: lookups see a session fully present or fully absent.
// - Only "next" and "prev" commands are ever forwarded, and only to agents.
//
// Usage:
//
//	srv, _ := relay.NewServer(relay.Config{Port: 8080, Logger: logger})
//	_ = srv.Start()
//	defer srv.Stop()
package relay
