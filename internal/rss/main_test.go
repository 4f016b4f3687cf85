package rss

import (
	"os"
	"testing"

	"geopulse/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}
