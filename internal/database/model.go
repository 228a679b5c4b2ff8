package database

import (
	"bytes"
	"encoding/json"

	"github.com/alex65536/syllabus/internal/account"
	"github.com/alex65536/syllabus/internal/userauth"
	"github.com/alex65536/syllabus/internal/util/clone"
	_ "github.com/alex65536/syllabus/internal/util/gormutil"
	"github.com/alex65536/syllabus/internal/util/timeutil"
)

// Profile is the stored form of account.Profile.
type Profile struct {
	ID               string  `gorm:"primaryKey"`
	Username         *string `gorm:"uniqueIndex"`
	SelectedSyllabus *string
	Outcomes         json.RawMessage `gorm:"type:text;serializer:rawjson"`
	UpdatedAt        timeutil.UTCTime
}

func (p Profile) toAccount() account.Profile {
	return account.Profile{
		ID:               p.ID,
		Username:         clone.TrivialPtr(p.Username),
		SelectedSyllabus: clone.TrivialPtr(p.SelectedSyllabus),
		Outcomes:         bytes.Clone(p.Outcomes),
	}
}

func profileFromAccount(p account.Profile) Profile {
	return Profile{
		ID:               p.ID,
		Username:         clone.TrivialPtr(p.Username),
		SelectedSyllabus: clone.TrivialPtr(p.SelectedSyllabus),
		Outcomes:         bytes.Clone(p.Outcomes),
	}
}

var models = []any{
	&userauth.User{},
	&userauth.Token{},
	&Profile{},
}
