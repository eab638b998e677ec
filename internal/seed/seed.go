// Package seed loads kennels, aliases, sources, and links from a YAML
// document. Applying the same document twice changes nothing.
package seed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"hashsync/internal/logging"
	"hashsync/internal/services"
	"hashsync/internal/store"
	"hashsync/internal/textutil"
)

// Document is the seed file layout.
type Document struct {
	Kennels []Kennel `yaml:"kennels"`
	Sources []Source `yaml:"sources"`
}

// Kennel is one seeded kennel with its aliases.
type Kennel struct {
	ShortName   string   `yaml:"short_name"`
	FullName    string   `yaml:"full_name"`
	Region      string   `yaml:"region"`
	Country     string   `yaml:"country"`
	Website     string   `yaml:"website"`
	Description string   `yaml:"description"`
	FoundedYear *int     `yaml:"founded_year"`
	Aliases     []string `yaml:"aliases"`
}

// Source is one seeded source and the kennels it may emit.
type Source struct {
	Name       string             `yaml:"name"`
	URL        string             `yaml:"url"`
	Type       string             `yaml:"type"`
	TrustLevel int                `yaml:"trust_level"`
	Enabled    *bool              `yaml:"enabled"`
	Config     store.SourceConfig `yaml:"config"`
	Kennels    []string           `yaml:"kennels"`
}

// Report counts what Apply changed.
type Report struct {
	KennelsCreated int `json:"kennels_created"`
	AliasesCreated int `json:"aliases_created"`
	SourcesCreated int `json:"sources_created"`
	SourcesUpdated int `json:"sources_updated"`
	LinksCreated   int `json:"links_created"`
}

// Parse decodes a seed document, rejecting unknown keys.
func Parse(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return &doc, nil
		}
		return nil, services.Wrap(services.ErrValidation, "seed", "parse", "", err)
	}
	return &doc, nil
}

// LoadFile parses the seed document at path.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Apply writes doc to the store in one transaction. Existing kennels are
// left as they are; existing sources are updated in place.
func Apply(ctx context.Context, st *store.Store, doc *Document, logger *slog.Logger) (Report, error) {
	logger = logging.NewComponentLogger(logger, "seed")
	var report Report
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		report = Report{}
		for _, k := range doc.Kennels {
			if err := applyKennel(ctx, tx, k, &report); err != nil {
				return err
			}
		}
		for _, s := range doc.Sources {
			if err := applySource(ctx, tx, s, &report); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	logger.Info("seed applied",
		logging.Int("kennels_created", report.KennelsCreated),
		logging.Int("aliases_created", report.AliasesCreated),
		logging.Int("sources_created", report.SourcesCreated),
		logging.Int("sources_updated", report.SourcesUpdated),
		logging.Int("links_created", report.LinksCreated),
	)
	return report, nil
}

func invalid(op, msg string) error {
	return services.Wrap(services.ErrValidation, "seed", op, msg, nil)
}

func applyKennel(ctx context.Context, tx *store.Tx, in Kennel, report *Report) error {
	short := textutil.Normalize(in.ShortName)
	if short == "" {
		return invalid("kennel", "short_name is required")
	}
	kennel, err := tx.KennelByShortName(ctx, short)
	if err != nil {
		return err
	}
	if kennel == nil {
		kennel = &store.Kennel{
			ShortName:   short,
			Slug:        textutil.Slugify(short),
			FullName:    textutil.Normalize(in.FullName),
			Region:      textutil.Normalize(in.Region),
			Country:     textutil.Normalize(in.Country),
			Website:     strings.TrimSpace(in.Website),
			Description: strings.TrimSpace(in.Description),
			FoundedYear: in.FoundedYear,
		}
		if err := tx.CreateKennel(ctx, kennel); err != nil {
			return fmt.Errorf("seed kennel %s: %w", short, err)
		}
		report.KennelsCreated++
	}
	for _, alias := range in.Aliases {
		alias = textutil.Normalize(alias)
		if alias == "" {
			continue
		}
		existing, err := tx.AliasByText(ctx, alias)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.KennelID != kennel.ID {
				return invalid("alias", fmt.Sprintf("alias %q of %s already belongs to kennel %d", alias, short, existing.KennelID))
			}
			continue
		}
		if _, err := tx.CreateAlias(ctx, kennel.ID, alias); err != nil {
			return err
		}
		report.AliasesCreated++
	}
	return nil
}

func applySource(ctx context.Context, tx *store.Tx, in Source, report *Report) error {
	name := textutil.Normalize(in.Name)
	if name == "" || strings.TrimSpace(in.Type) == "" {
		return invalid("source", "name and type are required")
	}
	enabled := in.Enabled == nil || *in.Enabled
	src, err := tx.SourceByName(ctx, name)
	if err != nil {
		return err
	}
	if src == nil {
		src = &store.Source{
			Name:       name,
			URL:        strings.TrimSpace(in.URL),
			Type:       strings.TrimSpace(in.Type),
			TrustLevel: in.TrustLevel,
			Config:     in.Config,
			Enabled:    enabled,
		}
		if err := tx.CreateSource(ctx, src); err != nil {
			return fmt.Errorf("seed source %s: %w", name, err)
		}
		report.SourcesCreated++
	} else if sourceChanged(src, in, enabled) {
		src.URL = strings.TrimSpace(in.URL)
		src.Type = strings.TrimSpace(in.Type)
		src.TrustLevel = in.TrustLevel
		src.Config = in.Config
		src.Enabled = enabled
		if err := tx.UpdateSource(ctx, src); err != nil {
			return err
		}
		report.SourcesUpdated++
	}
	for _, short := range in.Kennels {
		kennel, err := tx.KennelByShortName(ctx, textutil.Normalize(short))
		if err != nil {
			return err
		}
		if kennel == nil {
			return invalid("source", fmt.Sprintf("source %s links unknown kennel %q", name, short))
		}
		linked, err := tx.IsLinked(ctx, src.ID, kennel.ID)
		if err != nil {
			return err
		}
		if linked {
			continue
		}
		if _, err := tx.LinkSourceKennel(ctx, src.ID, kennel.ID); err != nil {
			return err
		}
		report.LinksCreated++
	}
	return nil
}

func sourceChanged(src *store.Source, in Source, enabled bool) bool {
	return src.URL != strings.TrimSpace(in.URL) ||
		src.Type != strings.TrimSpace(in.Type) ||
		src.TrustLevel != in.TrustLevel ||
		src.Enabled != enabled ||
		store.EncodeSourceConfig(src.Config) != store.EncodeSourceConfig(in.Config)
}
