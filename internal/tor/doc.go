// Package tor builds HTTP clients whose traffic goes through a Tor SOCKS5
// proxy.
//
// A Client points at an existing proxy (for example a system Tor daemon on
// 127.0.0.1:9050). EmbeddedTor starts a private Tor daemon with tornago
// and hands out Clients bound to it. Either way, the HTTP client returned
// by Client.NewHTTPClient is what torcheck verifies.
package tor
