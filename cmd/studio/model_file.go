package main

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/user/composablestudio/internal/types"
)

// modelFile is the YAML layout accepted by "content model import": either a
// single model at the top level or a list under "models".
type modelFile struct {
	types.ContentModel `yaml:",inline"`
	Models             []types.ContentModel `yaml:"models"`
}

func loadModelFile(path string) ([]types.ContentModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read model file")
	}
	return parseModels(data)
}

func parseModels(data []byte) ([]types.ContentModel, error) {
	var f modelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse model file")
	}

	models := f.Models
	if strings.TrimSpace(f.Name) != "" {
		models = append([]types.ContentModel{f.ContentModel}, models...)
	}
	if len(models) == 0 {
		return nil, errors.New("model file declares no models")
	}
	return models, nil
}
