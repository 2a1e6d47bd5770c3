package memory

import (
	"encoding/json"
	"fmt"
)

// Buckets lists the snapshot collections durable backends persist, in write order.
var Buckets = []string{
	"consumables",
	"equipment",
	"donors",
	"cultures",
	"storage_units",
	"master_banks",
	"releases",
	"tasks",
	"movements",
}

func (s *Snapshot) bucketTargets() map[string]any {
	return map[string]any{
		"consumables":   &s.Consumables,
		"equipment":     &s.Equipment,
		"donors":        &s.Donors,
		"cultures":      &s.Cultures,
		"storage_units": &s.StorageUnits,
		"master_banks":  &s.MasterBanks,
		"releases":      &s.Releases,
		"tasks":         &s.Tasks,
		"movements":     &s.Movements,
	}
}

// EncodeBuckets marshals every collection into its bucket payload.
func (s Snapshot) EncodeBuckets() (map[string][]byte, error) {
	targets := s.bucketTargets()
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		data, err := json.Marshal(targets[bucket])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket unmarshals a bucket payload into the matching collection.
// Unknown buckets and empty payloads are ignored.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	target, ok := s.bucketTargets()[bucket]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
