package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestPrefix(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"shorter than limit", "hello", 40, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut", "I found a chain letter", 7, "I found"},
		{"multibyte", "Act I – The Wound", 7, "Act I –"},
		{"zero", "hello", 0, ""},
		{"empty", "", 10, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Prefix(tt.in, tt.n))
		})
	}
}

func TestRecordIDString(t *testing.T) {
	id, err := RecordIDString(surrealmodels.RecordID{Table: "thread", ID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	_, err = RecordIDString(surrealmodels.RecordID{Table: "thread", ID: 42})
	assert.Error(t, err)
	assert.Panics(t, func() { MustRecordIDString(surrealmodels.RecordID{Table: "thread", ID: 42}) })
}

func TestUserNormalize(t *testing.T) {
	u := User{Username: "nyx"}
	u.Normalize()

	assert.Equal(t, DefaultTone, u.Profile.Tone)
	assert.Equal(t, DefaultPersona, u.Profile.Persona)
	assert.Equal(t, DefaultAge, u.Profile.Age)
	assert.Equal(t, ActWound, u.Act)
	assert.NotNil(t, u.Symbols)
	assert.NotNil(t, u.ThreadIDs)
	assert.Equal(t, "nyx", u.DisplayName())

	set := User{Profile: Profile{Name: "Nyx", Tone: "witty", Age: 15}, Act: ActReturn}
	set.Normalize()
	assert.Equal(t, "witty", set.Profile.Tone)
	assert.Equal(t, 15, set.Profile.Age)
	assert.Equal(t, ActReturn, set.Act)
	assert.Equal(t, "Nyx", set.DisplayName())

	assert.Equal(t, DefaultName, (&User{}).DisplayName())
}

func TestIsAct(t *testing.T) {
	for _, act := range Acts {
		assert.True(t, IsAct(act), act)
	}
	assert.False(t, IsAct("Act IV"))
	assert.False(t, IsAct(""))
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&Session{ExpiresAt: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&Session{ExpiresAt: now}).Expired(now))
}
