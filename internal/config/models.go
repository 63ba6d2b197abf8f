// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jeranaias/yumchat/internal/model"
	"github.com/jeranaias/yumchat/internal/util"
)

// ModelsPath returns the path to models.json.
func ModelsPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "models.json"), nil
}

// LoadModels reads the known-model list from path. A missing file is
// created with model.DefaultModels.
func LoadModels(path string) ([]model.ModelInfo, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		defaults := append([]model.ModelInfo(nil), model.DefaultModels...)
		if err := SaveModels(path, defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read models file: %w", err)
	}

	var models []model.ModelInfo
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("failed to parse models file: %w", err)
	}
	for i, m := range models {
		if m.Name == "" {
			return nil, fmt.Errorf("models file entry %d has no name", i)
		}
		if m.ContextWindowSize < 0 {
			return nil, fmt.Errorf("model %s has a negative context window", m.Name)
		}
	}
	return models, nil
}

// SaveModels writes models to path as indented JSON.
func SaveModels(path string, models []model.ModelInfo) error {
	data, err := json.MarshalIndent(models, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode models: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write models file: %w", err)
	}
	return nil
}
