package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/geocoder89/accountcore/internal/currency"
	"github.com/geocoder89/accountcore/internal/domain/ledger"
	"github.com/stretchr/testify/require"
)

var sampleAudits = []ledger.Audit{
	{UserID: "clean", Stored: 100, Computed: 100},
	{UserID: "fixed", Stored: 150, Computed: 100, Drift: 50, Fixed: true},
	{UserID: "open", Stored: 90, Computed: 100, Drift: -10},
}

func TestWriteReport_TextListsOnlyDrift(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleAudits, currency.DefaultConfig(), false))

	out := buf.String()
	require.NotContains(t, out, "clean")
	require.Contains(t, out, "fixed")
	require.Contains(t, out, "0.50 coins")
	require.True(t, strings.HasSuffix(out, "audited 3, drifted 2, fixed 1\n"), out)
}

func TestWriteReport_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleAudits, currency.DefaultConfig(), true))

	var rep report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rep))
	require.Len(t, rep.Audits, 3)
	require.Equal(t, 2, rep.Drifted)
	require.Equal(t, int64(-10), rep.Audits[2].Drift.Minor)
}

func TestUnfixedDrift(t *testing.T) {
	require.Equal(t, 1, unfixedDrift(sampleAudits))
	require.Zero(t, unfixedDrift(nil))
}
