package serializer

// Trajectory is the unit of experience exchanged between actors and
// learners: parallel slices of per-step observations, actions and rewards,
// plus an opaque metadata blob (e.g. episode ids or actor hyperparameters).
//
// The slices are index-aligned; Observations[i], Actions[i] and Rewards[i]
// describe the same step. The transport does not enforce equal lengths,
// leaving partial records (e.g. a trailing observation without an action)
// to the application.
type Trajectory struct {
	Observations [][]byte  `json:"observations,omitempty"`
	Actions      [][]byte  `json:"actions,omitempty"`
	Rewards      []float64 `json:"rewards,omitempty"`
	Meta         []byte    `json:"meta,omitempty"`
}

// Steps returns the number of complete steps in the trajectory.
func (t Trajectory) Steps() int {
	n := len(t.Observations)
	if len(t.Actions) < n {
		n = len(t.Actions)
	}
	if len(t.Rewards) < n {
		n = len(t.Rewards)
	}
	return n
}

// ITrajectorySerializer is the interface for all trajectory serializers
type ITrajectorySerializer interface {
	// Serialize serializes a Trajectory into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(t Trajectory) ([]byte, error)
	// Deserialize deserializes a byte array into a Trajectory
	// It takes a byte array and a pointer to a Trajectory as parameters
	// It returns an error if any
	Deserialize(b []byte, t *Trajectory) error
}
