package main

import (
	"bytes"
	"encoding/json"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/releasekpi/pkg/config"
	"github.com/ethpandaops/releasekpi/pkg/kpi"
	"github.com/ethpandaops/releasekpi/pkg/release"
)

var sampleRecords = []kpi.Record{{
	Key:            kpi.KeyReleaseCoverage,
	Value:          75,
	FormattedValue: "75.00%",
	TrendSymbol:    kpi.TrendUp,
	Percent:        true,
	Project:        "PAY",
	Release:        "R1_PROD",
	ComputedAt:     time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC),
}}

func TestWriteRecords(t *testing.T) {
	now := time.Date(2025, 2, 1, 13, 0, 0, 0, time.UTC)

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeRecords(&buf, outputTable, sampleRecords, now))

		out := buf.String()
		assert.Contains(t, out, "RELEASE")
		assert.Contains(t, out, "75.00%")
		assert.Contains(t, out, "3 hours ago")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeRecords(&buf, outputJSON, sampleRecords, now))

		var got []kpi.Record
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, sampleRecords, got)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeRecords(&buf, outputYAML, sampleRecords, now))

		var got []map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "releaseCoverage", got[0]["key"])
		assert.Equal(t, "R1_PROD", got[0]["release"])
	})

	t.Run("empty json is an array", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeRecords(&buf, outputJSON, nil, now))
		assert.JSONEq(t, "[]", buf.String())
	})
}

func TestWriteIdentities(t *testing.T) {
	g, err := release.ParseGrammar("${version}_${environment}_${platform}")
	require.NoError(t, err)

	parser := release.NewParser(g, release.Rules{
		VersionPattern: regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]*$`),
		Environments:   []string{"PROD"},
		Platforms:      []string{"WEB"},
	})

	var buf bytes.Buffer
	require.NoError(t, writeIdentities(&buf, parser,
		[]string{"r1_prod_[web]", "PROJ-2025-02-R02"}))

	out := buf.String()
	assert.Contains(t, out, "R1_PROD")
	assert.Contains(t, out, "WEB")
	assert.Contains(t, out, "(unparseable)")
}

func TestBuildParser_InvalidGrammar(t *testing.T) {
	nullLog, hook := test.NewNullLogger()

	prev := log
	log = nullLog

	t.Cleanup(func() { log = prev })

	parser, cmp, err := buildParser(&config.Config{
		Release: config.ReleaseConfig{
			Grammar:        "${version}",
			VersionPattern: config.DefaultVersionPattern,
			Environments:   []string{"PROD"},
			Ordering:       "lexicographic",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, cmp)
	assert.False(t, parser.Operable())

	_, ok := parser.Parse("R1_PROD")
	assert.False(t, ok)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestNewLogger_WritesToStderr(t *testing.T) {
	l := newLogger()

	assert.Equal(t, os.Stderr, l.Out)
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)
}
