package trial

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadManifest reads a participant's session manifest back from disk.
// A missing manifest is reported as nil without an error: sessions that
// crashed before the aggregator finished legitimately lack one.
func LoadManifest(dataDir, participant string) (*SessionManifest, error) {
	path := filepath.Join(dataDir, participant, "session_manifest.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session manifest: %w", err)
	}

	var manifest SessionManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse session manifest: %w", err)
	}
	return &manifest, nil
}
