// Package model provides the typed resource graph for orgsync.
// Every manageable resource type is registered as a Schema: an ordered mapping
// table of fields, each tagged with a Kind and the keys it uses in
// configuration, provider payloads and write payloads.
//
// The package includes:
// - Schema and Field definitions for every resource type
// - Object, the generic node shared by desired and live trees
// - Decoding from configuration and provider payloads, and serialization to write payloads
package model
