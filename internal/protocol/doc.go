// Package protocol implements the chat relay's text wire format.
//
// Inbound frames are classified once into a tagged Frame value. Outbound
// frames are built by the constructor functions in outbound.go.
package protocol
