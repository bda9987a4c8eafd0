package sqlbase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dukex/autorules/pkg/log"
)

func TestMigrationManager_Versions(t *testing.T) {
	m := NewMigrationManager(log.Discard(), nil, map[int]string{
		3: "SELECT 3",
		1: "SELECT 1",
		2: "SELECT 2",
	})

	assert.Equal(t, 3, m.LatestVersion())
	assert.Equal(t, []int{1, 2, 3}, m.pendingVersions(0))
	assert.Equal(t, []int{3}, m.pendingVersions(2))
	assert.Empty(t, m.pendingVersions(3))
}
