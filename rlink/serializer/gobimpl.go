package serializer

import (
	"bytes"
	"encoding/gob"
)

// NewGOBSerializer creates a new serializer using Go's binary gob format
func NewGOBSerializer() ITrajectorySerializer {
	return &gobSerializerImpl{}
}

// gobSerializerImpl implements the ITrajectorySerializer interface using gob
// encoding
type gobSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ITrajectorySerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(t Trajectory) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, t *Trajectory) error {
	buf := bytes.NewBuffer(b)
	dec := gob.NewDecoder(buf)
	return dec.Decode(t)
}
