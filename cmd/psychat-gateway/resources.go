// ABOUTME: resources command: seeds the support resource directory from a YAML file
// ABOUTME: Writes straight to the configured database, no running gateway needed

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/2389/psychat-gateway/internal/store"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Manage the support resource directory",
}

var resourcesImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import resource listings from a YAML file",
	Long: `Import resource listings from a YAML file of the form:

  resources:
    - title: "Campus counseling center"
      category: "clinic"
      location_tag: "beijing"
      phone: "010-0000-0000"
      url: "https://example.edu/counseling"
      description: "Free sessions for enrolled students"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening resource file: %w", err)
		}
		defer f.Close()

		resources, err := parseResources(f, time.Now().UTC())
		if err != nil {
			return err
		}

		s, err := store.Open(cfg.Database.Driver, cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer s.Close()

		for _, res := range resources {
			if err := s.CreateResource(cmd.Context(), res); err != nil {
				return fmt.Errorf("importing %q: %w", res.Title, err)
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("imported %d resource(s)", len(resources))))
		return nil
	},
}

func init() {
	resourcesCmd.AddCommand(resourcesImportCmd)
}

type resourceFile struct {
	Resources []struct {
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
		Category    string `yaml:"category"`
		LocationTag string `yaml:"location_tag"`
		URL         string `yaml:"url"`
		Phone       string `yaml:"phone"`
	} `yaml:"resources"`
}

// parseResources decodes and validates a resource file. Entries are stamped
// one nanosecond apart so file order survives the newest-first listing.
func parseResources(r io.Reader, now time.Time) ([]*store.Resource, error) {
	var file resourceFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing resource file: %w", err)
	}

	out := make([]*store.Resource, 0, len(file.Resources))
	for i, entry := range file.Resources {
		title := strings.TrimSpace(entry.Title)
		category := strings.TrimSpace(entry.Category)
		if title == "" {
			return nil, fmt.Errorf("resource %d: title is required", i+1)
		}
		if category == "" {
			return nil, fmt.Errorf("resource %d (%s): category is required", i+1, title)
		}
		out = append(out, &store.Resource{
			ID:          uuid.New().String(),
			Title:       title,
			Description: entry.Description,
			Category:    category,
			LocationTag: strings.TrimSpace(entry.LocationTag),
			URL:         entry.URL,
			Phone:       entry.Phone,
			CreatedAt:   now.Add(time.Duration(len(file.Resources)-i) * time.Nanosecond),
		})
	}
	return out, nil
}
