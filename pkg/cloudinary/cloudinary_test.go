package cloudinary

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindForContentType(t *testing.T) {
	assert.Equal(t, KindImage, KindForContentType("image/png"))
	assert.Equal(t, KindVideo, KindForContentType("video/mp4"))
	assert.Equal(t, "", KindForContentType("application/pdf"))
}

func TestChatFolder(t *testing.T) {
	assert.Equal(t, "carelink/chat/12", ChatFolder("carelink", 12))
}
