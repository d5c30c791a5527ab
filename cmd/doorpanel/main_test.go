package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.tigermatt.uk/doorpanel"
	"go.tigermatt.uk/doorpanel/zusi"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doorpanel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestConfigPrecedence(t *testing.T) {
	path := writeConfig(t, "server: file:1436\nqueue_depth: 8\nclient_name: from-file\n")

	tests := []struct {
		name       string
		args       []string
		wantServer string
		wantQueue  int
		wantClient string
	}{
		{name: "file", args: []string{"--config", path},
			wantServer: "file:1436", wantQueue: 8, wantClient: "from-file"},
		{name: "positional over file", args: []string{"--config", path, "arg:1436"},
			wantServer: "arg:1436", wantQueue: 8, wantClient: "from-file"},
		{name: "flags over file", args: []string{"--config", path, "--queue-depth", "16", "--client-name", "flag"},
			wantServer: "file:1436", wantQueue: 16, wantClient: "flag"},
		{name: "defaults", args: nil,
			wantServer: zusi.DefaultAddress, wantQueue: doorpanel.DefaultQueueDepth, wantClient: doorpanel.DefaultClientName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts = options{}
			cmd := rootCommand()
			require.NoError(t, cmd.ParseFlags(tt.args))

			cfg, err := opts.config(cmd, cmd.Flags().Args())
			require.NoError(t, err)

			assert.Equal(t, tt.wantServer, cfg.Server)
			assert.Equal(t, tt.wantQueue, cfg.QueueDepth)
			assert.Equal(t, tt.wantClient, cfg.ClientName)
		})
	}
}

func TestConfigRejectsBadQueueDepth(t *testing.T) {
	opts = options{}
	cmd := rootCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--queue-depth", "0"}))

	_, err := opts.config(cmd, nil)
	assert.ErrorIs(t, err, doorpanel.ErrInvalidConfig)
}

func TestLoggerLevel(t *testing.T) {
	o := options{logLevel: "debug"}
	_, err := o.logger()
	require.NoError(t, err)

	o.logLevel = "loud"
	_, err = o.logger()
	assert.Error(t, err)
}

func recordSession(t *testing.T, nodes ...*zusi.Node) string {
	t.Helper()
	var buf bytes.Buffer
	rec := &doorpanel.Recorder{Dest: &buf, Session: "test"}
	for _, n := range nodes {
		require.NoError(t, rec.Record(doorpanel.Inbound, n))
	}
	require.NoError(t, rec.Record(doorpanel.Outbound, doorpanel.InputBatch(doorpanel.Keypress(1, 1))))

	path := filepath.Join(t.TempDir(), "session.cbor")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func releaseEvent() *zusi.Node {
	return zusi.NewNode(zusi.IDClientApp, zusi.NewNode(zusi.IDOperation,
		zusi.NewNode(0x0002).With(
			zusi.TextAttr(0x0001, "Tuerfreigabe"),
			zusi.Int16Attr(0x0003, 0),
		),
	))
}

func TestReplayCommand(t *testing.T) {
	path := recordSession(t, zusi.NewNode(0x0099), releaseEvent())

	opts = options{}
	cmd := rootCommand()
	cmd.AddCommand(replayCommand())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"replay", path})

	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Contains(t, lines[0], "#1 doors=0 release=1 panel=right simulator=none")
	assert.Contains(t, out.String(), "  switch 22 -> notch 0\n")
	assert.Contains(t, out.String(), "#2 doors=0 release=0 panel=right")
	assert.Equal(t, "  key 36/63", lines[len(lines)-1])
}

func TestReplayRecordsSkipsOutbound(t *testing.T) {
	records := make(chan doorpanel.Record, 2)
	records <- doorpanel.Record{Direction: doorpanel.Outbound, Node: releaseEvent()}
	records <- doorpanel.Record{Direction: doorpanel.Inbound, Timestamp: time.Now(), Node: releaseEvent()}
	close(records)

	var out bytes.Buffer
	require.NoError(t, replayRecords(&out, doorpanel.NewTranslator(doorpanel.DefaultPanel()), records))

	assert.Contains(t, out.String(), "#1 ")
	assert.NotContains(t, out.String(), "#2 ")
}

func TestMetricsRouter(t *testing.T) {
	m := doorpanel.NewMetrics()
	m.MessagesReceived.Add(4)
	srv := httptest.NewServer(metricsRouter(m))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "doorpanel_messages_received_total 4")
}
