// Package node exposes the public rlink API: ActorNode and LearnerNode.
//
// An actor connects to one learner and sends experience payloads; a learner
// binds a port, merges the inbound streams of any number of actors into one
// receive queue, and can broadcast (e.g. model parameters) to all connected
// actors. Payloads are opaque byte sequences; their encoding belongs to the
// application.
//
// Each node instance owns its own connection manager, router and — in
// reliable mode — reliability layer; nothing is shared between nodes in the
// same process.
//
// Minimal usage:
//
//	learner, err := node.NewLearnerNode(5555, node.WithReliable(3))
//	...
//	from, payload, err := learner.Receive(ctx)
//
//	actor, err := node.NewActorNode("10.0.0.1:5555", node.WithReliable(3))
//	...
//	handle, err := actor.Send(trajectoryBytes)
//	outcome, err := handle.Wait(ctx)
package node
