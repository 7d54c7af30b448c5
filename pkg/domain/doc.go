/*
Package domain contains the core domain models of the autotron runtime.

It defines the persisted graph document, the device command ledger entries, audit
records, runtime status and the error taxonomy. This package is kept pure and free
of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Document: the persisted node graph (nodes + connections).
  - Command / TrackedCommand: a device command and its ledger entry.
  - StateUpdate: an inbound report from the actuation boundary.
  - Expectation / AuditRecord: believed vs. reported device state.
  - Status: a snapshot of the runtime for the control surface.
*/
package domain
