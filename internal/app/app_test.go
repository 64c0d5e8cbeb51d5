package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	memorypublisher "github.com/JakeFAU/wikititles-crawler/internal/publisher/memory"
	localreports "github.com/JakeFAU/wikititles-crawler/internal/storage/local"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewDefaultsDisableOptionalServices(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), "")
	require.NoError(t, err)
	defer a.Close()

	require.Nil(t, a.Publisher())
	require.Nil(t, a.ReportStore())
	require.NotNil(t, a.Logger())
	require.NotNil(t, a.IDGenerator())
	require.NotNil(t, a.Clock())
	require.Equal(t, "dev", a.Config().Site.Env)
}

func TestNewBuildsMemoryPublisherAndLocalReports(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "reports")
	path := writeConfig(t, `
publisher:
  kind: memory
  topic: titles
report:
  kind: local
  dir: `+dir+`
logging:
  development: false
`)

	a, err := New(context.Background(), path)
	require.NoError(t, err)
	defer a.Close()

	require.IsType(t, &memorypublisher.Publisher{}, a.Publisher())
	require.IsType(t, &localreports.ReportStore{}, a.ReportStore())
	require.DirExists(t, dir)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "report:\n  kind: s3\n")

	_, err := New(context.Background(), path)
	require.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), "")
	require.NoError(t, err)
	a.Close()
	a.Close()
}
