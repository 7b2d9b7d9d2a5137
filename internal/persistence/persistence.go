package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/markusressel/depth2go/internal/pid"
	"github.com/markusressel/depth2go/internal/samples"
	"github.com/markusressel/depth2go/internal/ui"
	bolt "go.etcd.io/bbolt"
)

const (
	BucketRuns = "runs"
)

// RunSettings are the parameters a run was started with
type RunSettings struct {
	PlantId    string        `json:"plantId"`
	Gains      pid.Gains     `json:"gains"`
	Setpoint   float64       `json:"setpoint"`
	TimeStep   time.Duration `json:"timeStep"`
	MaxThrust  float64       `json:"maxThrust"`
	AntiWindup string        `json:"antiWindup"`
	Mode       string        `json:"mode"`
	MaxCycles  int           `json:"maxCycles"`
}

// RunRecord is a finished run, including all of its samples
type RunRecord struct {
	Id        string           `json:"id"`
	StartedAt time.Time        `json:"startedAt"`
	EndedAt   time.Time        `json:"endedAt"`
	Settings  RunSettings      `json:"settings"`
	Reason    string           `json:"reason"`
	Error     string           `json:"error,omitempty"`
	Samples   []samples.Sample `json:"samples"`
}

type Persistence interface {
	Init() error

	SaveRun(record RunRecord) error
	// LoadRun returns os.ErrNotExist if there is no run with the given id
	LoadRun(id string) (RunRecord, error)
	// LoadRuns returns all stored runs, oldest first
	LoadRuns() ([]RunRecord, error)
	DeleteRun(id string) error
}

type persistence struct {
	dbPath string
}

func NewPersistence(dbPath string) Persistence {
	p := &persistence{
		dbPath: dbPath,
	}
	return p
}

func (p persistence) Init() (err error) {
	// get parent path of dbPath
	parentDir := filepath.Dir(p.dbPath)
	_, err = os.Stat(parentDir)
	if errors.Is(err, os.ErrNotExist) {
		ui.Info("Creating directory for db: %s", parentDir)
		err = os.MkdirAll(parentDir, 0755)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p persistence) openPersistence() (db *bolt.DB, err error) {
	db, err = bolt.Open(p.dbPath, 0600, &bolt.Options{Timeout: 1 * time.Minute})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// SaveRun stores the given run, an existing run with the same id is replaced
func (p persistence) SaveRun(record RunRecord) (err error) {
	if len(record.Id) <= 0 {
		return errors.New("run id must not be empty")
	}

	db, err := p.openPersistence()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		if err != nil {
			return fmt.Errorf("create bucket: %s", err)
		}
		return b.Put([]byte(record.Id), data)
	})
}

// LoadRun loads a single run from persistence
func (p persistence) LoadRun(id string) (RunRecord, error) {
	db, err := p.openPersistence()
	if err != nil {
		return RunRecord{}, err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	var record RunRecord
	err = db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))
		if b == nil {
			return os.ErrNotExist
		}
		v := b.Get([]byte(id))
		if v == nil {
			return os.ErrNotExist
		}

		err := json.Unmarshal(v, &record)
		if err != nil {
			// if we cannot read the saved data, delete it
			ui.Warning("Unable to unmarshal saved run %s: %v", id, err)
			err := b.Delete([]byte(id))
			if err != nil {
				ui.Error("Unable to delete corrupt data key %s: %v", id, err)
			}
			return os.ErrNotExist
		}
		return nil
	})

	return record, err
}

func (p persistence) LoadRuns() ([]RunRecord, error) {
	db, err := p.openPersistence()
	if err != nil {
		return nil, err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	var records []RunRecord
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))
		if b == nil {
			// no run has been stored yet
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var record RunRecord
			if err := json.Unmarshal(v, &record); err != nil {
				ui.Warning("Skipping unreadable run %s: %v", string(k), err)
				return nil
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
	return records, nil
}

func (p persistence) DeleteRun(id string) error {
	db, err := p.openPersistence()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))
		if b == nil {
			// no run bucket yet
			return nil
		}
		v := b.Get([]byte(id))
		if v == nil {
			// no data for given key
			return nil
		}

		return b.Delete([]byte(id))
	})
}
