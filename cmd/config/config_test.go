package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderlist/imagebackfill/internal/app"
	"github.com/wanderlist/imagebackfill/internal/buildinfo"
	"github.com/wanderlist/imagebackfill/internal/conf"
)

func TestCommand_PrintsRedactedSettingsAndMissing(t *testing.T) {
	ctx := app.NewContext(buildinfo.NewContext("test", ""))
	ctx.Settings = &conf.Settings{
		Provider:   conf.ProviderSettings{Type: conf.ProviderPexels, APIKey: "pexels-secret"},
		DataSource: conf.DataSourceSettings{Type: conf.DataSourceREST, URL: "https://project.supabase.co"},
		Storage:    conf.StorageSettings{Type: conf.StorageSupabase, Bucket: conf.DefaultBucket},
	}

	cmd := Command(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	got := out.String()
	assert.NotContains(t, got, "pexels-secret")
	assert.Contains(t, got, "https://project.supabase.co")
	assert.Contains(t, got, "missing:")
	assert.Contains(t, got, "SUPABASE_SERVICE_ROLE_KEY")
	assert.Contains(t, got, "BACKFILL_TABLES")
	assert.NotContains(t, got, "PEXELS_API_KEY")
}
