package services

import (
	"context"

	"setlist-survivor/apperrors"
	"setlist-survivor/models"
	"setlist-survivor/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SongCatalog maps normalized titles to song IDs. Build one per run; it is not safe
// for concurrent use.
type SongCatalog struct {
	byKey map[string]string
}

func NewSongCatalog(songs []models.Song) *SongCatalog {
	c := &SongCatalog{byKey: make(map[string]string, len(songs))}
	for _, s := range songs {
		c.add(s)
	}
	return c
}

func LoadSongCatalog(ctx context.Context, db *gorm.DB) (*SongCatalog, error) {
	var songs []models.Song
	if err := db.WithContext(ctx).Select("id", "title", "title_key").Find(&songs).Error; err != nil {
		return nil, apperrors.Database("load song catalog", err)
	}
	return NewSongCatalog(songs), nil
}

func (c *SongCatalog) add(s models.Song) {
	key := utils.NormalizeTitle(s.Title)
	if key == "" {
		key = s.TitleKey
	}
	if key == "" {
		return
	}
	if _, exists := c.byKey[key]; !exists {
		c.byKey[key] = s.ID
	}
}

func (c *SongCatalog) Lookup(title string) (string, bool) {
	id, ok := c.byKey[utils.NormalizeTitle(title)]
	return id, ok
}

func (c *SongCatalog) Len() int {
	return len(c.byKey)
}

type ResolveResult struct {
	SongIDs    []string
	Minted     int
	Unresolved []string
}

// Resolve maps setlist titles to song IDs in setlist order without duplicates. Titles
// missing from the catalog are inserted in one batch first. The result is usable even
// when err is non-nil: it then holds the IDs that did resolve.
func (c *SongCatalog) Resolve(ctx context.Context, db *gorm.DB, titles []string) (ResolveResult, error) {
	var (
		missing     []models.Song
		missingKeys []string
		seenMissing = map[string]bool{}
		mintErr     error
		result      ResolveResult
	)

	for _, title := range titles {
		key := utils.NormalizeTitle(title)
		if key == "" {
			continue
		}
		if _, ok := c.byKey[key]; ok || seenMissing[key] {
			continue
		}
		seenMissing[key] = true
		missing = append(missing, models.NewSong(utils.CleanTitle(title)))
		missingKeys = append(missingKeys, key)
	}

	if len(missing) > 0 {
		res := db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "title_key"}}, DoNothing: true}).
			Create(&missing)
		if res.Error != nil {
			mintErr = apperrors.Database("mint songs", res.Error)
		} else {
			result.Minted = int(res.RowsAffected)
		}

		var stored []models.Song
		if err := db.WithContext(ctx).Where("title_key IN ?", missingKeys).Find(&stored).Error; err != nil && mintErr == nil {
			mintErr = apperrors.Database("reload minted songs", err)
		}
		for _, s := range stored {
			c.add(s)
		}
	}

	seen := map[string]bool{}
	for _, title := range titles {
		key := utils.NormalizeTitle(title)
		if key == "" {
			continue
		}
		id, ok := c.byKey[key]
		if !ok {
			result.Unresolved = append(result.Unresolved, title)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		result.SongIDs = append(result.SongIDs, id)
	}

	return result, mintErr
}
