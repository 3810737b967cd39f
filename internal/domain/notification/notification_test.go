package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessagef(t *testing.T) {
	msg := Messagef(LevelWarning, "break", map[string]string{"system": "ldap"}, "%d updates in %s", 3, "1m0s")

	assert.Equal(t, LevelWarning, msg.Level)
	assert.Equal(t, "break", msg.Subject)
	assert.Equal(t, "3 updates in 1m0s", msg.Body)
	assert.Equal(t, "ldap", msg.Params["system"])
	assert.False(t, msg.SentAt.IsZero())
}
