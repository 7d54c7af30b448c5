/*
Package node defines the contract between the graph runtime and node types.

A node type is a Factory plus a Descriptor, registered once at startup. Each
instance receives an Env bound to its id, computes its outputs once per tick and
persists its configuration through Serialize/Restore. Typed configuration structs
are decoded from, and encoded to, the persisted properties map with Decode and Encode.
*/
package node
