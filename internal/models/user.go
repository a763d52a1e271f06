package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Lore acts an actor can be placed in.
const (
	ActWound     = "Act I – The Wound"
	ActReckoning = "Act II – The Reckoning"
	ActReturn    = "Act III – The Return"
)

// Acts lists the lore acts in narrative order.
var Acts = []string{ActWound, ActReckoning, ActReturn}

// IsAct reports whether act is one of the known lore acts.
func IsAct(act string) bool {
	for _, a := range Acts {
		if a == act {
			return true
		}
	}
	return false
}

// Profile defaults.
const (
	DefaultName    = "Seeker"
	DefaultAge     = 18
	DefaultTone    = "reflective"
	DefaultPersona = "a mythic oracle"
)

// Profile holds the attributes an actor supplies at registration.
type Profile struct {
	Name        string `json:"name"`
	Age         int    `json:"age"`
	Gender      string `json:"gender"`
	Personality string `json:"personality"`
	Tone        string `json:"tone"`
	Persona     string `json:"persona"`
	Custom      string `json:"custom"`
}

// User is a registered actor. The record key is the actor id.
type User struct {
	ID           surrealmodels.RecordID `json:"id"`
	Username     string                 `json:"username"`
	PasswordHash string                 `json:"password_hash"`
	Profile      Profile                `json:"profile"`
	Symbols      []string               `json:"symbols"`
	Act          string                 `json:"act"`
	ThreadIDs    []string               `json:"thread_ids"`
	CreatedAt    time.Time              `json:"created_at"`
}

// ActorID returns the record key, or "" for a record without a string key.
func (u *User) ActorID() string {
	id, err := RecordIDString(u.ID)
	if err != nil {
		return ""
	}
	return id
}

// DisplayName is the name the assistant addresses the actor by.
func (u *User) DisplayName() string {
	if u.Profile.Name != "" {
		return u.Profile.Name
	}
	if u.Username != "" {
		return u.Username
	}
	return DefaultName
}

// Normalize fills unset optional fields with their defaults.
func (u *User) Normalize() {
	if u.Profile.Tone == "" {
		u.Profile.Tone = DefaultTone
	}
	if u.Profile.Persona == "" {
		u.Profile.Persona = DefaultPersona
	}
	if u.Profile.Age <= 0 {
		u.Profile.Age = DefaultAge
	}
	if u.Act == "" {
		u.Act = ActWound
	}
	if u.Symbols == nil {
		u.Symbols = []string{}
	}
	if u.ThreadIDs == nil {
		u.ThreadIDs = []string{}
	}
}
