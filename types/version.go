package types

// Version is the canonical project version.
// The CLI, the adapter and the ipc wire contract share this version.
const Version = "0.3.0"

// ProtocolVersion is the asynchronous protocol version advertised in every scope.
const ProtocolVersion = "3.0"

// ProtocolSpecVersion is the HTTP sub-protocol spec version advertised in every scope.
const ProtocolSpecVersion = "2.1"
