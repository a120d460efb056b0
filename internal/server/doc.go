// Package server implements the chat relay core: the session directory,
// handshake and admission, frame routing, broadcast and unicast delivery,
// idle reaping and the departure procedure, all coordinated by Hub.
//
// Transports hand connections to Hub.Attach. ServeTCP does so for raw
// stream sockets and WebSocketHandler for browser clients; both end up in
// the same directory. The remaining files carry configuration, HTTP
// routing and Prometheus metrics.
package server
