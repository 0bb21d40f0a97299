package types

// Version is the canonical project version.
// The CLI and all pipeline components share this version.
const Version = "0.4.0"
