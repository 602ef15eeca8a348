// Package types holds the small set of enums and the Value boundary
// interface the core client depends on. The actual bin-value codec (typed
// integers, strings, blobs, lists, maps, GeoJSON, HLL) is an external
// collaborator per spec.md §1 — this package only states the contract the
// core needs: a particle type tag and a byte encoding for key digests and
// operation payloads.
package types

// ParticleType tags the wire encoding of a value. Only a handful of values
// are meaningful to the core itself (user keys restrict to Integer, String,
// Blob); the rest pass through opaque bin payloads untouched.
type ParticleType uint8

const (
	ParticleNull     ParticleType = 0
	ParticleInteger  ParticleType = 1
	ParticleFloat    ParticleType = 2
	ParticleString   ParticleType = 3
	ParticleBlob     ParticleType = 4
	ParticleDigest   ParticleType = 6
	ParticleBool     ParticleType = 17
	ParticleHLL      ParticleType = 18
	ParticleMap      ParticleType = 19
	ParticleList     ParticleType = 20
	ParticleLDT      ParticleType = 21
	ParticleGeoJSON  ParticleType = 23
)

// Value is the boundary contract between the core and the external value
// codec: anything that can describe its own particle type and produce the
// bytes the wire protocol needs (key digest input, or op payload) satisfies
// it. This package implements IntegerValue, StringValue, BytesValue,
// NullValue and RawValue; richer value kinds belong to the value-codec
// package this core calls but does not own.
type Value interface {
	// ParticleType returns the wire tag for this value.
	ParticleType() ParticleType
	// KeyBytes returns the byte encoding used when this value is part of a
	// key digest. Only Integer, String and Blob values may appear here —
	// passing any other particle type as a user key is a programmer error
	// the key constructor panics on.
	KeyBytes() []byte
	// EncodeTo appends this value's wire bytes (used for operation payloads)
	// to dst and returns the extended slice.
	EncodeTo(dst []byte) []byte
	// EstimateSize returns the number of bytes EncodeTo will append, so
	// buffers can be sized without a second encode pass.
	EstimateSize() int
	// String renders a human-readable form for logs and errors.
	String() string
}
