package backend

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
)

func newTestDirectory() *Directory {
	d := NewDirectory()
	d.cost = bcrypt.MinCost
	return d
}

func TestDirectoryAuthenticate(t *testing.T) {
	d := newTestDirectory()
	if err := d.AddSurveyor(model.Surveyor{ID: "SUR001", Username: "ana", Password: "ignored"}, "secret"); err != nil {
		t.Fatal(err)
	}

	sv, err := d.Authenticate("ana", "secret")
	if err != nil || sv.ID != "SUR001" {
		t.Fatalf("Authenticate = %+v, %v", sv, err)
	}
	if sv.Password != "" {
		t.Error("directory returned a password field")
	}
	if _, err := d.Authenticate("ana", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", err)
	}
	if _, err := d.Authenticate("nobody", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: %v", err)
	}
	if err := d.AddSurveyor(model.Surveyor{ID: "SUR002", Username: "ana"}, "x"); !errors.Is(err, ErrDuplicateSurveyor) {
		t.Errorf("duplicate username: %v", err)
	}
	t.Logf("✓ Directory checks bcrypt hashes and rejects duplicates")
}

func TestDirectorySeed(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("hashed-pw"), bcrypt.MinCost)
	seed := `
surveyors:
  - username: carla
    name: Carla
    password: pw
  - id: SUR010
    username: dimo
    passwordHash: "` + string(hash) + `"
`
	d := newTestDirectory()
	n, err := d.LoadSeedBytes([]byte(seed))
	if err != nil || n != 2 {
		t.Fatalf("LoadSeedBytes = %d, %v", n, err)
	}

	carla, err := d.Authenticate("carla", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(carla.ID, "SUR-") || !carla.IsTrackable() {
		t.Errorf("generated id %q is not a trackable id", carla.ID)
	}
	if _, err := d.Authenticate("dimo", "hashed-pw"); err != nil {
		t.Errorf("pre-hashed password: %v", err)
	}

	if _, err := newTestDirectory().LoadSeedBytes([]byte("surveyors:\n  - username: x\n")); err == nil {
		t.Error("seed entry without a password was accepted")
	}
	t.Logf("✓ YAML seed loads plaintext and hashed passwords")
}
