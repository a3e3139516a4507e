package serializer

import (
	"encoding/json"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() ITrajectorySerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the ITrajectorySerializer interface using
// json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ITrajectorySerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(t Trajectory) ([]byte, error) {
	return json.Marshal(t)
}

func (j jsonSerializerImpl) Deserialize(b []byte, t *Trajectory) error {
	return json.Unmarshal(b, t)
}
