package webui

import (
	"github.com/alex65536/syllabus/internal/account"
	"github.com/alex65536/syllabus/internal/util/avatar"
)

type userPartData struct {
	ID          string
	Email       string
	DisplayName string
	Initials    string
	AvatarBG    string
	AvatarFG    string
}

func buildUserPartData(sess *account.Session, profile *account.Profile) *userPartData {
	name := sess.User.Email
	if profile != nil && profile.Username != nil && *profile.Username != "" {
		name = *profile.Username
	}
	bg := avatar.Color(sess.User.ID)
	return &userPartData{
		ID:          sess.User.ID,
		Email:       sess.User.Email,
		DisplayName: name,
		Initials:    avatar.Initials(name),
		AvatarBG:    bg,
		AvatarFG:    avatar.TextColor(bg),
	}
}
