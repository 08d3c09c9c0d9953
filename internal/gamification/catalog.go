package gamification

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teachme/backend/internal/database"
	"github.com/teachme/backend/internal/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the static set of badges and achievements.
type Catalog struct {
	Badges       []models.Badge
	Achievements []models.Achievement
}

type yamlCatalog struct {
	Badges       []yamlBadge       `yaml:"badges"`
	Achievements []yamlAchievement `yaml:"achievements"`
}

type yamlBadge struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
	Rarity      string `yaml:"rarity"`
}

type yamlAchievement struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Criteria    struct {
		Type      string `yaml:"type"`
		Target    int    `yaml:"target"`
		Subject   string `yaml:"subject"`
		Timeframe string `yaml:"timeframe"`
	} `yaml:"criteria"`
	Reward struct {
		XP      int    `yaml:"xp"`
		BadgeID string `yaml:"badge_id"`
		Title   string `yaml:"title"`
	} `yaml:"reward"`
	Inactive bool `yaml:"inactive"`
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a YAML catalog from path, or the built-in one when path
// is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var raw yamlCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	cat := &Catalog{}
	badgeIDs := make(map[string]bool, len(raw.Badges))
	for _, b := range raw.Badges {
		if b.ID == "" || b.Name == "" {
			return nil, fmt.Errorf("badge %q: id and name are required", b.ID)
		}
		if badgeIDs[b.ID] {
			return nil, fmt.Errorf("duplicate badge %q", b.ID)
		}
		badgeIDs[b.ID] = true
		rarity := b.Rarity
		if rarity == "" {
			rarity = "COMMON"
		}
		cat.Badges = append(cat.Badges, models.Badge{
			ID: b.ID, Name: b.Name, Description: b.Description, Icon: b.Icon, Rarity: rarity,
		})
	}

	seen := make(map[string]bool, len(raw.Achievements))
	for _, a := range raw.Achievements {
		if a.ID == "" || a.Name == "" {
			return nil, fmt.Errorf("achievement %q: id and name are required", a.ID)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("duplicate achievement %q", a.ID)
		}
		seen[a.ID] = true
		if a.Criteria.Target <= 0 {
			return nil, fmt.Errorf("achievement %q: target must be positive", a.ID)
		}
		if a.Reward.XP < 0 {
			return nil, fmt.Errorf("achievement %q: reward xp must not be negative", a.ID)
		}
		if a.Reward.BadgeID != "" && !badgeIDs[a.Reward.BadgeID] {
			return nil, fmt.Errorf("achievement %q: unknown badge %q", a.ID, a.Reward.BadgeID)
		}
		timeframe := models.Timeframe(a.Criteria.Timeframe)
		if timeframe == "" {
			timeframe = models.TimeframeAllTime
		}

		cat.Achievements = append(cat.Achievements, models.Achievement{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Category:    a.Category,
			Criteria: models.AchievementCriteria{
				Type:      models.CriteriaType(a.Criteria.Type),
				Target:    a.Criteria.Target,
				Subject:   a.Criteria.Subject,
				Timeframe: timeframe,
			},
			Reward: models.AchievementReward{
				XP:      a.Reward.XP,
				BadgeID: a.Reward.BadgeID,
				Title:   a.Reward.Title,
			},
			IsActive: !a.Inactive,
		})
	}
	return cat, nil
}

// SeedCatalog upserts every badge and achievement by id.
func SeedCatalog(ctx context.Context, db *database.DB, cat *Catalog) error {
	return db.InTx(ctx, func(tx *database.Tx) error {
		st := NewStore(tx)
		for _, b := range cat.Badges {
			if err := st.UpsertBadge(ctx, b); err != nil {
				return err
			}
		}
		for _, a := range cat.Achievements {
			if err := st.UpsertAchievement(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
}
