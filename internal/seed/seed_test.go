package seed_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hashsync/internal/logging"
	"hashsync/internal/seed"
	"hashsync/internal/services"
	"hashsync/internal/testsupport"
)

const sampleSeed = `
kennels:
  - short_name: NYCH3
    full_name: New York City Hash House Harriers
    region: New York City
    country: US
    founded_year: 1978
    aliases: [NYC, "New York H3"]
  - short_name: BFM
    full_name: Ben Franklin Mob H3
    region: Philadelphia
sources:
  - name: hashnyc.com
    url: https://hashnyc.com/calendar
    type: html_scraper
    trust_level: 8
    config:
      default_tag: NYCH3
      patterns:
        - pattern: "^BFM"
          kennel: BFM
    kennels: [NYCH3, BFM]
`

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	doc, err := seed.Parse(strings.NewReader(sampleSeed))
	require.NoError(t, err)

	report, err := seed.Apply(ctx, st, doc, logging.NewNop())
	require.NoError(t, err)
	assert.Equal(t, seed.Report{KennelsCreated: 2, AliasesCreated: 2, SourcesCreated: 1, LinksCreated: 2}, report)

	again, err := seed.Apply(ctx, st, doc, logging.NewNop())
	require.NoError(t, err)
	assert.Equal(t, seed.Report{}, again)

	kennel, err := st.KennelByAlias(ctx, "new york h3")
	require.NoError(t, err)
	require.NotNil(t, kennel)
	assert.Equal(t, "NYCH3", kennel.ShortName)
	require.NotNil(t, kennel.FoundedYear)
	assert.Equal(t, 1978, *kennel.FoundedYear)

	src, err := st.SourceByName(ctx, "hashnyc.com")
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.True(t, src.Enabled)
	assert.Equal(t, "NYCH3", src.Config.DefaultTag)
	require.Len(t, src.Config.Patterns, 1)
	assert.Equal(t, "BFM", src.Config.Patterns[0].Kennel)
}

func TestApplyUpdatesChangedSource(t *testing.T) {
	ctx := context.Background()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	doc, err := seed.Parse(strings.NewReader(sampleSeed))
	require.NoError(t, err)
	_, err = seed.Apply(ctx, st, doc, logging.NewNop())
	require.NoError(t, err)

	disabled := false
	doc.Sources[0].Enabled = &disabled
	doc.Sources[0].TrustLevel = 3

	report, err := seed.Apply(ctx, st, doc, logging.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, report.SourcesUpdated)
	assert.Zero(t, report.SourcesCreated)

	src, err := st.SourceByName(ctx, "hashnyc.com")
	require.NoError(t, err)
	assert.False(t, src.Enabled)
	assert.Equal(t, 3, src.TrustLevel)
}

func TestApplyRejectsAliasOwnedElsewhere(t *testing.T) {
	ctx := context.Background()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.MustCreateKennel(t, st, "GGFM", "NYC")

	doc, err := seed.Parse(strings.NewReader(sampleSeed))
	require.NoError(t, err)

	_, err = seed.Apply(ctx, st, doc, logging.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.Contains(t, err.Error(), "already belongs")

	kennel, err := st.KennelByShortName(ctx, "NYCH3")
	require.NoError(t, err)
	assert.Nil(t, kennel, "failed seed must roll back")
}

func TestApplyRejectsUnknownLinkedKennel(t *testing.T) {
	doc := &seed.Document{Sources: []seed.Source{{Name: "orphan", Type: "json_feed", Kennels: []string{"NOPE"}}}}
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	_, err := seed.Apply(context.Background(), st, doc, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kennel")
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := seed.Parse(strings.NewReader("kennels:\n  - shortname: X\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrValidation)

	doc, err := seed.Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, doc.Kennels)
}
