package serializer

import (
	"encoding/binary"
	"fmt"
	"math"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() ITrajectorySerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements ITrajectorySerializer using a custom
// binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasObservations byte = 1 << 0
	hasActions      byte = 1 << 1
	hasRewards      byte = 1 << 2
	hasMeta         byte = 1 << 3
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ITrajectorySerializer)
// --------------------------------------------------------------------------

func (s binarySerializerImpl) Serialize(t Trajectory) ([]byte, error) {
	// Calculate total size needed
	totalSize := s.sizeBytes(t)
	result := make([]byte, totalSize)

	// Initialize flags byte
	var flags byte = 0

	// Set position for writing
	pos := 1 // Start after flags

	// Handle Observations
	if t.Observations != nil {
		flags |= hasObservations
		pos = writeByteSlices(result, pos, t.Observations)
	}

	// Handle Actions
	if t.Actions != nil {
		flags |= hasActions
		pos = writeByteSlices(result, pos, t.Actions)
	}

	// Handle Rewards
	if t.Rewards != nil {
		flags |= hasRewards

		// Write reward count
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(t.Rewards)))
		pos += 4

		// Write reward data as IEEE 754 bits
		for _, r := range t.Rewards {
			binary.BigEndian.PutUint64(result[pos:pos+8], math.Float64bits(r))
			pos += 8
		}
	}

	// Handle Meta
	if t.Meta != nil {
		flags |= hasMeta
		metaLen := len(t.Meta)

		// Write meta length
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(metaLen))
		pos += 4

		// Write meta data
		if metaLen > 0 {
			copy(result[pos:pos+metaLen], t.Meta)
			pos += metaLen
		}
	}

	// Set flags byte after knowing which fields are present
	result[0] = flags

	return result, nil
}

func (s binarySerializerImpl) Deserialize(data []byte, t *Trajectory) error {
	// Check minimum size (flags)
	if len(data) < 1 {
		return fmt.Errorf("data too short for trajectory header")
	}

	// Read flags
	flags := data[0]

	// Initialize read position
	pos := 1

	// Read Observations if present
	if flags&hasObservations != 0 {
		items, next, err := readByteSlices(data, pos, "observations")
		if err != nil {
			return err
		}
		t.Observations = items
		pos = next
	} else {
		t.Observations = nil
	}

	// Read Actions if present
	if flags&hasActions != 0 {
		items, next, err := readByteSlices(data, pos, "actions")
		if err != nil {
			return err
		}
		t.Actions = items
		pos = next
	} else {
		t.Actions = nil
	}

	// Read Rewards if present
	if flags&hasRewards != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for reward count")
		}

		// Read reward count
		count := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		if uint64(count)*8 > uint64(len(data)-pos) {
			return fmt.Errorf("data too short for reward data")
		}

		t.Rewards = make([]float64, count)
		for i := range t.Rewards {
			t.Rewards[i] = math.Float64frombits(binary.BigEndian.Uint64(data[pos : pos+8]))
			pos += 8
		}
	} else {
		t.Rewards = nil
	}

	// Read Meta if present
	if flags&hasMeta != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for meta length")
		}

		// Read meta length
		metaLen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		if pos+int(metaLen) > len(data) {
			return fmt.Errorf("data too short for meta data")
		}

		// Read metadata - create an empty slice (not nil) if length is 0
		t.Meta = make([]byte, metaLen)
		if metaLen > 0 {
			copy(t.Meta, data[pos:pos+int(metaLen)])
			pos += int(metaLen)
		}
	} else {
		t.Meta = nil
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// writeByteSlices writes a count-prefixed sequence of length-prefixed items
// and returns the position after the last byte written
func writeByteSlices(dst []byte, pos int, items [][]byte) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(items)))
	pos += 4
	for _, item := range items {
		binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(item)))
		pos += 4
		copy(dst[pos:pos+len(item)], item)
		pos += len(item)
	}
	return pos
}

// readByteSlices reads a count-prefixed sequence of length-prefixed items
func readByteSlices(data []byte, pos int, field string) ([][]byte, int, error) {
	if pos+4 > len(data) {
		return nil, 0, fmt.Errorf("data too short for %s count", field)
	}
	count := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4

	// Every item carries at least a 4-byte length prefix, so the declared
	// count is bounded by the remaining bytes. Check before allocating.
	if uint64(count)*4 > uint64(len(data)-pos) {
		return nil, 0, fmt.Errorf("data too short for %s count %d", field, count)
	}

	items := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(data) {
			return nil, 0, fmt.Errorf("data too short for %s item length", field)
		}
		itemLen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		if pos+int(itemLen) > len(data) {
			return nil, 0, fmt.Errorf("data too short for %s item data", field)
		}
		item := make([]byte, itemLen)
		copy(item, data[pos:pos+int(itemLen)])
		pos += int(itemLen)
		items = append(items, item)
	}
	return items, pos, nil
}

// sizeBytes calculates the total size needed for serialization
func (s binarySerializerImpl) sizeBytes(t Trajectory) int {
	// 1 byte for flags
	size := 1

	if t.Observations != nil {
		size += 4 // item count
		for _, o := range t.Observations {
			size += 4 + len(o) // 4 bytes for length + item bytes
		}
	}
	if t.Actions != nil {
		size += 4
		for _, a := range t.Actions {
			size += 4 + len(a)
		}
	}
	if t.Rewards != nil {
		size += 4 + 8*len(t.Rewards) // 4 bytes for count + float64 each
	}
	if t.Meta != nil {
		size += 4 + len(t.Meta) // 4 bytes for length + meta bytes
	}

	return size
}
