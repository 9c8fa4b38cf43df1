package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "captures/default%2Fdefault%2FP1/shot.png", ObjectKey("captures", "default/default/P1", "shot.png"))
	assert.Equal(t, "netlists/doc/x.net", ObjectKey("netlists", "doc", "../../x.net"))
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Endpoint: "localhost:9000"})
	require.Error(t, err)

	s, err := New(Config{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s", Bucket: "schsync"})
	require.NoError(t, err)
	assert.Equal(t, "schsync", s.bucket)
}
