package backend

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrDuplicateSurveyor  = errors.New("surveyor already exists")
)

type account struct {
	surveyor model.Surveyor
	hash     []byte
}

// Directory holds the surveyor accounts. Passwords are kept as bcrypt hashes
// and never leave the directory.
type Directory struct {
	mu         sync.RWMutex
	byID       map[string]*account
	byUsername map[string]*account
	cost       int
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byID:       map[string]*account{},
		byUsername: map[string]*account{},
		cost:       bcrypt.DefaultCost,
	}
}

// AddSurveyor registers s with a plaintext password.
func (d *Directory) AddSurveyor(s model.Surveyor, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return fmt.Errorf("hashing password for %s: %w", s.ID, err)
	}
	return d.addHashed(s, hash)
}

func (d *Directory) addHashed(s model.Surveyor, hash []byte) error {
	if s.Username == "" {
		return fmt.Errorf("username is required")
	}
	if s.ID == "" {
		s.ID = NewSurveyorID()
	}
	s.Password = ""

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[s.ID]; ok {
		return fmt.Errorf("%w: id %s", ErrDuplicateSurveyor, s.ID)
	}
	if _, ok := d.byUsername[s.Username]; ok {
		return fmt.Errorf("%w: username %s", ErrDuplicateSurveyor, s.Username)
	}
	acc := &account{surveyor: s, hash: hash}
	d.byID[s.ID] = acc
	d.byUsername[s.Username] = acc
	return nil
}

// NewSurveyorID returns a fresh trackable id such as SUR-1B4E28BA.
func NewSurveyorID() string {
	return "SUR-" + strings.ToUpper(uuid.NewString()[:8])
}

// Authenticate checks username and password and returns the surveyor record.
func (d *Directory) Authenticate(username, password string) (model.Surveyor, error) {
	d.mu.RLock()
	acc, ok := d.byUsername[username]
	d.mu.RUnlock()
	if !ok {
		return model.Surveyor{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return model.Surveyor{}, ErrInvalidCredentials
	}
	return acc.surveyor, nil
}

// Get returns the surveyor with id.
func (d *Directory) Get(id string) (model.Surveyor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acc, ok := d.byID[id]
	if !ok {
		return model.Surveyor{}, false
	}
	return acc.surveyor, true
}

// List returns every account sorted by id, admin accounts included.
func (d *Directory) List() []model.Surveyor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Surveyor, 0, len(d.byID))
	for _, acc := range d.byID {
		out = append(out, acc.surveyor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// seedFile is the YAML layout accepted by LoadSeed.
//
//	surveyors:
//	  - id: SUR001
//	    name: Ana
//	    city: Sofia
//	    projectName: Metro
//	    username: ana
//	    password: secret          # or passwordHash: $2a$10$...
type seedFile struct {
	Surveyors []seedSurveyor `yaml:"surveyors"`
}

type seedSurveyor struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	City         string `yaml:"city"`
	ProjectName  string `yaml:"projectName"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"passwordHash"`
}

// LoadSeed reads accounts from a YAML file into d.
func (d *Directory) LoadSeed(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading seed file: %w", err)
	}
	return d.LoadSeedBytes(data)
}

// LoadSeedBytes is LoadSeed on an in-memory document.
func (d *Directory) LoadSeedBytes(data []byte) (int, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parsing seed file: %w", err)
	}
	for i, s := range seed.Surveyors {
		rec := model.Surveyor{
			ID:          s.ID,
			Name:        s.Name,
			City:        s.City,
			ProjectName: s.ProjectName,
			Username:    s.Username,
		}
		var err error
		switch {
		case s.PasswordHash != "":
			err = d.addHashed(rec, []byte(s.PasswordHash))
		case s.Password != "":
			err = d.AddSurveyor(rec, s.Password)
		default:
			err = fmt.Errorf("no password")
		}
		if err != nil {
			return i, fmt.Errorf("seed entry %d (%s): %w", i, s.ID, err)
		}
	}
	return len(seed.Surveyors), nil
}
