package peers

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const jsonPeerSetPath = "peers.json"

// JSONPeerSet is used to provide peer persistence on disk in the form of a JSON
// file.
type JSONPeerSet struct {
	l    sync.Mutex
	path string
}

// NewJSONPeerSet creates a new JSONPeerSet with reference to a base directory
// where the JSON file resides.
func NewJSONPeerSet(base string) *JSONPeerSet {
	return &JSONPeerSet{
		path: filepath.Join(base, jsonPeerSetPath),
	}
}

// Path returns the location of the underlying file.
func (j *JSONPeerSet) Path() string {
	return j.path
}

// PeerSet parses the underlying JSON file and returns the corresponding
// PeerSet.
func (j *JSONPeerSet) PeerSet() (*PeerSet, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := os.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	var peers []*Peer
	if len(buf) > 0 {
		if err := json.NewDecoder(bytes.NewReader(buf)).Decode(&peers); err != nil {
			return nil, err
		}
	}

	for _, peer := range peers {
		peer.PubKeyHex = "0X" + strings.TrimPrefix(strings.ToUpper(peer.PubKeyHex), "0X")
	}

	return NewPeerSet(peers)
}

// Write persists a list of peers to the JSON file.
func (j *JSONPeerSet) Write(peers []*Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(peers); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return err
	}

	return os.WriteFile(j.path, buf.Bytes(), 0644)
}
