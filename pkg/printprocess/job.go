// Print job specs
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package printprocess

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"stdio-shepherd/pkg/errors"
)

// Layer is one image of a job.
type Layer struct {
	Image      string
	Brightness int
}

// Job is an ordered list of layers plus the run parameters.
type Job struct {
	ID             string
	Layers         []Layer
	LayerThickness float64
	ExposureTime   time.Duration
	LiftTravel     float64
}

// Defaults fill values a job spec leaves out.
type Defaults struct {
	Brightness     int
	LayerThickness float64
	ExposureTime   time.Duration
	LiftTravel     float64
}

// jobSpec is the JSON/YAML form of a job. Pointers tell missing values
// from zero ones.
type jobSpec struct {
	LayerThickness *float64    `json:"layerThickness" yaml:"layerThickness"`
	ExposureTime   *float64    `json:"exposureTime" yaml:"exposureTime"` // seconds
	Brightness     *int        `json:"brightness" yaml:"brightness"`
	LiftTravel     *float64    `json:"liftTravel" yaml:"liftTravel"`
	Layers         []layerSpec `json:"layers" yaml:"layers"`
	Images         []string    `json:"images" yaml:"images"`
}

type layerSpec struct {
	Image      string `json:"image" yaml:"image"`
	Brightness *int   `json:"brightness" yaml:"brightness"`
}

// ParseJob reads a job from inline JSON (spec starts with '{') or from a
// .json, .yaml or .yml file. Relative image paths in a file are taken
// relative to the file.
func ParseJob(spec string, d Defaults) (*Job, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.InvalidJob("empty job spec", nil)
	}

	var js jobSpec
	baseDir := ""
	if strings.HasPrefix(spec, "{") {
		if err := json.Unmarshal([]byte(spec), &js); err != nil {
			return nil, errors.InvalidJob("bad inline job", err)
		}
	} else {
		data, err := os.ReadFile(spec)
		if err != nil {
			return nil, errors.InvalidJob("cannot read job file", err)
		}
		switch strings.ToLower(filepath.Ext(spec)) {
		case ".json":
			err = json.Unmarshal(data, &js)
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &js)
		default:
			return nil, errors.InvalidJob(fmt.Sprintf("unsupported job file %q", spec), nil)
		}
		if err != nil {
			return nil, errors.InvalidJob(fmt.Sprintf("bad job file %q", spec), err)
		}
		baseDir = filepath.Dir(spec)
	}
	return js.build(d, baseDir)
}

func (js *jobSpec) build(d Defaults, baseDir string) (*Job, error) {
	job := &Job{
		ID:             uuid.New().String(),
		LayerThickness: d.LayerThickness,
		ExposureTime:   d.ExposureTime,
		LiftTravel:     d.LiftTravel,
	}
	if js.LayerThickness != nil {
		job.LayerThickness = *js.LayerThickness
	}
	if js.ExposureTime != nil {
		job.ExposureTime = time.Duration(*js.ExposureTime * float64(time.Second))
	}
	if js.LiftTravel != nil {
		job.LiftTravel = *js.LiftTravel
	}
	brightness := d.Brightness
	if js.Brightness != nil {
		brightness = *js.Brightness
	}

	layers := js.Layers
	for _, image := range js.Images {
		layers = append(layers, layerSpec{Image: image})
	}
	for i, ls := range layers {
		if ls.Image == "" {
			return nil, errors.InvalidJob(fmt.Sprintf("layer %d has no image", i), nil)
		}
		l := Layer{Image: ls.Image, Brightness: brightness}
		if ls.Brightness != nil {
			l.Brightness = *ls.Brightness
		}
		if baseDir != "" && !filepath.IsAbs(l.Image) {
			l.Image = filepath.Join(baseDir, l.Image)
		}
		job.Layers = append(job.Layers, l)
	}

	if err := job.validate(); err != nil {
		return nil, err
	}
	return job, nil
}

func (j *Job) validate() error {
	switch {
	case len(j.Layers) == 0:
		return errors.InvalidJob("job has no layers", nil)
	case j.LayerThickness <= 0:
		return errors.InvalidJob(fmt.Sprintf("layer thickness %g must be positive", j.LayerThickness), nil)
	case j.ExposureTime <= 0:
		return errors.InvalidJob(fmt.Sprintf("exposure time %s must be positive", j.ExposureTime), nil)
	case j.LiftTravel < 0:
		return errors.InvalidJob(fmt.Sprintf("lift travel %g is negative", j.LiftTravel), nil)
	}
	for i, l := range j.Layers {
		if l.Brightness < 0 || l.Brightness > 255 {
			return errors.InvalidJob(fmt.Sprintf("layer %d brightness %d outside 0..255", i, l.Brightness), nil)
		}
	}
	return nil
}
