/*
Package autotron is a headless runtime for home-automation node graphs.

A graph document lists nodes (sensors, logic, timers, device actuators) and the
connections between their ports. The runtime evaluates every node once per tick,
in topological order, and lets actuator nodes issue device commands through an
actuation boundary. Every command is recorded in a ledger and confirmed by the
state updates that devices report back; a periodic audit compares what the graph
expects with what the devices say.

# Concept

The graph is data, not code. Node behaviour comes from a registry of node types
(see package pkg/nodes for the built-ins), and a saved document can be edited
and hot reloaded while the runtime keeps ticking: nodes whose id and type did
not change keep their live state.

An interactive frontend can take over the devices for a while. While its
heartbeat is fresh, nodes keep computing but device commands are suppressed.

# Usage

	svc, err := autotron.New(
		autotron.WithStore(file.New("graphs")),
		autotron.WithActuator(memory.NewDevices()),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer svc.Close()

	ctx := context.Background()
	if err := svc.LoadNamed(ctx, "living-room"); err != nil {
		log.Fatal(err)
	}
	if err := svc.Start(ctx); err != nil {
		log.Fatal(err)
	}

The control surface in pkg/adapters/http exposes the same operations over HTTP.
*/
package autotron
