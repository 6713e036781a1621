package tuning

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/liverrisk/nn"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

const oracleFile = "oracle.json"

// OracleState is the search-level record written to oracle.json.
type OracleState struct {
	Objective   string    `json:"objective"`
	Direction   string    `json:"direction"`
	MaxEpochs   int       `json:"max_epochs"`
	Factor      int       `json:"factor"`
	Seed        uint64    `json:"seed"`
	TrialIDs    []string  `json:"trial_ids"`
	BestTrialID string    `json:"best_trial_id,omitempty"`
	Completed   bool      `json:"completed"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists search state under <directory>/<project>.
type Store struct {
	dir string
}

// NewStore returns a store rooted at directory/project.
func NewStore(directory, project string) *Store {
	return &Store{dir: filepath.Join(directory, project)}
}

// Dir returns the project directory.
func (s *Store) Dir() string { return s.dir }

// Clear removes every file of a previous search.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return errors.Wrapf(err, "failed to clear %s", s.dir)
	}
	return nil
}

func (s *Store) trialPath(id string) string {
	return filepath.Join(s.dir, "trial_"+id+".json")
}

func (s *Store) checkpointPath(id string) string {
	return filepath.Join(s.dir, "trial_"+id+"_checkpoint.json")
}

func (s *Store) writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", filepath.Base(path))
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", s.dir)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func (s *Store) readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "failed to decode %s", path)
	}
	return nil
}

// SaveTrial writes the trial record and, when the trial has a network, its
// checkpoint.
func (s *Store) SaveTrial(t *Trial) error {
	if err := s.writeJSON(s.trialPath(t.ID), t); err != nil {
		return err
	}
	if t.network == nil {
		return nil
	}
	return t.network.Save(s.checkpointPath(t.ID))
}

// LoadTrial reads a trial record without its network.
func (s *Store) LoadTrial(id string) (*Trial, error) {
	var t Trial
	if err := s.readJSON(s.trialPath(id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadCheckpoint reads the network checkpointed for a trial.
func (s *Store) LoadCheckpoint(id string) (*nn.Network, error) {
	return nn.Load(s.checkpointPath(id))
}

// SaveOracle writes oracle.json.
func (s *Store) SaveOracle(o *OracleState) error {
	o.UpdatedAt = time.Now().UTC()
	return s.writeJSON(filepath.Join(s.dir, oracleFile), o)
}

// LoadOracle reads oracle.json. The error wraps os.ErrNotExist when no
// search has been stored.
func (s *Store) LoadOracle() (*OracleState, error) {
	var o OracleState
	if err := s.readJSON(filepath.Join(s.dir, oracleFile), &o); err != nil {
		return nil, err
	}
	return &o, nil
}
