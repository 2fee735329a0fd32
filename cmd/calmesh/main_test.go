package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/calmesh/config"
)

const feed = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//calmesh//test//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:launch@example.com\r\nDTSTAMP:20250101T000000Z\r\n" +
	"DTSTART:20250301T090000Z\r\nDTEND:20250301T100000Z\r\nSUMMARY:Launch\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func setup(t *testing.T) (cfgPath, feedURL string) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Logging.Level = "error"
	cfg.ICal.AllowFiles = true
	cfg.Accounts = config.AccountsConfig{Driver: config.DriverSQLite, DSN: "file:" + filepath.Join(dir, "accounts.db")}
	cfgPath = filepath.Join(dir, "calmesh.yaml")
	require.NoError(t, config.Save(cfgPath, cfg))

	feedPath := filepath.Join(dir, "launch.ics")
	require.NoError(t, os.WriteFile(feedPath, []byte(feed), 0o600))
	return cfgPath, "file://" + feedPath
}

func runCLI(t *testing.T, args ...string) []envelope {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out))

	var decoded []envelope
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		var single envelope
		require.NoError(t, json.Unmarshal(out.Bytes(), &single))
		decoded = []envelope{single}
	}
	return decoded
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--help"}, &out))
	assert.Contains(t, out.String(), "subscribe <name> <url>")

	out.Reset()
	require.NoError(t, run(context.Background(), nil, &out))
	assert.Contains(t, out.String(), "Usage:")
}

func TestRun_UnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"frobnicate"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown command")
}

func TestRun_SubscriptionPersists(t *testing.T) {
	cfgPath, feedURL := setup(t)

	sub := runCLI(t, "--config", cfgPath, "--user", "3", "subscribe", "Launches", feedURL)
	require.Len(t, sub, 1)
	folderID := sub[0].Key
	assert.Equal(t, "cal://1/0", folderID)

	events := runCLI(t, "--config", cfgPath, "--user", "3", "events", folderID)
	require.Len(t, events, 1)
	assert.Equal(t, folderID, events[0].Key)
	assert.Empty(t, events[0].Error)
	assert.Contains(t, string(mustJSON(t, events[0].Value)), "Launch")

	hits := runCLI(t, "-c", cfgPath, "-u", "3", "search", "launch")
	var found bool
	for _, h := range hits {
		if h.Value != nil {
			found = true
		}
	}
	assert.True(t, found)

	// other users do not see the subscription
	events = runCLI(t, "--config", cfgPath, "--user", "4", "events", folderID)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].Error)
}

func TestRun_FreeBusyArguments(t *testing.T) {
	cfgPath, _ := setup(t)
	err := run(context.Background(), []string{"--config", cfgPath, "freebusy", "yesterday", "today", "mailto:a@example.com"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "invalid from")

	err = run(context.Background(), []string{"--config", cfgPath, "subscribe", "only-name"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "usage")
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
