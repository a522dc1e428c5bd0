// Package lens wraps the camera/lens correction database and the
// modifier that undoes vignetting, transverse chromatic aberration
// and geometric distortion. The database is a YAML file; a miss is
// never an error, the pipeline just skips the corrections.
package lens

import(
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

type Camera struct {
	Maker      string  `yaml:"maker"`
	Model      string  `yaml:"model"`
	CropFactor float64 `yaml:"cropfactor"`
}

type Lens struct {
	Maker      string   `yaml:"maker"`
	Model      string   `yaml:"model"`
	Cameras    []string `yaml:"cameras"` // camera models this lens calibration applies to; empty = any
	MinFNumber float64  `yaml:"minfnumber"`

	Distortion struct {
		K1 float64 `yaml:"k1"`
		K2 float64 `yaml:"k2"`
	} `yaml:"distortion"`

	TCA struct {
		R float64 `yaml:"r"`
		B float64 `yaml:"b"`
	} `yaml:"tca"`

	Vignetting struct {
		K1 float64 `yaml:"k1"`
		K2 float64 `yaml:"k2"`
		K3 float64 `yaml:"k3"`
	} `yaml:"vignetting"`
}

type Database struct {
	Cameras []Camera `yaml:"cameras"`
	Lenses  []Lens   `yaml:"lenses"`
}

func LoadDatabase(path string) (*Database, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lens db read '%s': %v", path, err)
	}
	db := &Database{}
	if err := yaml.Unmarshal(contents, db); err != nil {
		return nil, fmt.Errorf("lens db parse '%s': %v", path, err)
	}
	return db, nil
}

// FindCameras matches camera records by case-insensitive substring.
func (db *Database)FindCameras(name string) []Camera {
	if name == "" {
		return nil
	}
	var out []Camera
	for _, c := range db.Cameras {
		if strings.Contains(strings.ToLower(c.Model), strings.ToLower(name)) ||
			strings.Contains(strings.ToLower(name), strings.ToLower(c.Model)) {
			out = append(out, c)
		}
	}
	return out
}

// FindLenses matches lens records by substring; when camera is
// non-nil the lens must be calibrated for it (or for any camera).
func (db *Database)FindLenses(camera *Camera, name string) []Lens {
	if name == "" {
		return nil
	}
	var out []Lens
	for _, l := range db.Lenses {
		if !strings.Contains(strings.ToLower(l.Model), strings.ToLower(name)) &&
			!strings.Contains(strings.ToLower(name), strings.ToLower(l.Model)) {
			continue
		}
		if camera != nil && len(l.Cameras) > 0 {
			found := false
			for _, m := range l.Cameras {
				if strings.EqualFold(m, camera.Model) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, l)
	}
	return out
}
