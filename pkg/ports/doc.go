/*
Package ports defines the driven ports (interfaces) for the autotron runtime.

These interfaces decouple the core logic from external implementations, allowing
the runtime to work with various storage backends and device-protocol clients.

# Key Interfaces

  - GraphStore: Persists graph documents (file, Redis, memory) and the last active graph.
  - Actuator: Sends device commands and answers state queries for the audit.
  - StateSubscriber: Streams asynchronous state-update events from devices.
  - Watchable: Notifies about backend changes for hot reload.
  - Locker: Serializes saves on stores shared between processes.
*/
package ports
