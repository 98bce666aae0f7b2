package registry

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/utils"
)

// catalogNamespace derives stable ids for file entries that omit one
var catalogNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://ai-governance/models"))

// catalogFile is the on-disk YAML layout
type catalogFile struct {
	Models []*models.AIModel `yaml:"models"`
}

// CatalogID returns the id a file entry with this key receives when it has none
func CatalogID(key string) uuid.UUID {
	return uuid.NewSHA1(catalogNamespace, []byte(key))
}

// LoadCatalogFile reads and validates a YAML model catalog
func LoadCatalogFile(path string) ([]*models.AIModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML. Keys must be unique.
func ParseCatalog(data []byte) ([]*models.AIModel, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}

	now := time.Now()
	seen := make(map[string]bool, len(file.Models))
	for i, m := range file.Models {
		if m == nil {
			return nil, fmt.Errorf("model catalog entry %d is empty", i)
		}
		m.Key = strings.TrimSpace(m.Key)
		if m.Status == "" {
			m.Status = models.ModelStatusActive
		}
		if m.Capabilities == nil {
			m.Capabilities = pq.StringArray{}
		}
		if m.Regions == nil {
			m.Regions = pq.StringArray{}
		}
		if err := utils.ValidateStruct(m); err != nil {
			return nil, fmt.Errorf("model catalog entry %d (%s): %w", i, m.Key, err)
		}
		if seen[m.Key] {
			return nil, fmt.Errorf("model catalog has duplicate key %q", m.Key)
		}
		seen[m.Key] = true

		if m.ID == uuid.Nil {
			m.ID = CatalogID(m.Key)
		}
		m.CreatedAt = now
		m.UpdatedAt = now
	}
	return file.Models, nil
}
