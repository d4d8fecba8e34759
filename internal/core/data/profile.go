package data

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/queuegate/queuegate/internal/protocol"
)

// Profile is the stored form of a player's identity record: the (uuid,
// username) pair plus the signed properties delivered at their last login.
type Profile struct {
	ID         uint64 `gorm:"primaryKey"`
	Username   string `gorm:"unique; not null"`
	PlayerID   string `gorm:"not null"`
	Properties string
	LastLogin  time.Time
}

// FindProfileByUsername searches for a profile with the specified username,
// returning the *Profile instance if found or nil if there is no match.
func FindProfileByUsername(db *gorm.DB, username string) (*Profile, error) {
	var profile Profile
	err := db.Where("username = ?", username).First(&profile).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &profile, nil
}

// UpsertProfile persists the profile record, overwriting any previous row
// for the same username.
func UpsertProfile(db *gorm.DB, p protocol.Profile) error {
	props, err := json.Marshal(p.Properties)
	if err != nil {
		return err
	}

	existing, err := FindProfileByUsername(db, p.Name)
	if err != nil {
		return err
	}

	row := &Profile{
		Username:   p.Name,
		PlayerID:   p.ID.String(),
		Properties: string(props),
		LastLogin:  time.Now(),
	}
	if existing != nil {
		row.ID = existing.ID
	}
	return db.Save(row).Error
}

// AllProfiles loads every stored profile, converting rows back into the
// in-memory representation. Rows with unparseable ids are skipped.
func AllProfiles(db *gorm.DB) ([]protocol.Profile, error) {
	var rows []Profile
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}

	profiles := make([]protocol.Profile, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.PlayerID)
		if err != nil {
			continue
		}
		var props []protocol.Property
		if row.Properties != "" {
			if err := json.Unmarshal([]byte(row.Properties), &props); err != nil {
				continue
			}
		}
		profiles = append(profiles, protocol.Profile{ID: id, Name: row.Username, Properties: props})
	}
	return profiles, nil
}
