package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/app"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/config"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/search/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cloud", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/hal+json")
		if r.URL.Query().Get("page") != "0" {
			_, _ = w.Write([]byte(`{"_embedded":{"results":[]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"_embedded":{"results":[
			{"_id":"abc","title":"Cloud hosting","organizationHierarchy":[{"name":"GSA"}]},
			{"_id":"def","title":"Cloud migration"},
			{"_id":"abc","title":"Cloud hosting (dup)"}
		]}}`))
	})
	mux.HandleFunc("/opps/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/opps/abc/resources":
			_, _ = w.Write([]byte(`{"_embedded":{"opportunityAttachmentList":[{"attachments":[
				{"resourceId":"r1","name":"SOW.pdf","accessLevel":"public"},
				{"resourceId":"r2","name":"Blocked.pdf","accessLevel":"public"},
				{"resourceId":"r3","name":"CUI.pdf","accessLevel":"controlled"}
			]}]}}`))
		case strings.HasSuffix(r.URL.Path, "/resources"):
			_, _ = w.Write([]byte(`{"_embedded":{}}`))
		case r.URL.Path == "/opps/abc":
			_, _ = w.Write([]byte(`{"data2":{"naics":[{"code":["541512"]}]}}`))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/files/r1/download", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("statement of work"))
	})
	mux.HandleFunc("/files/r2/download", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(upstream string) config.Config {
	return config.Config{
		Harvest: config.HarvestConfig{
			Keywords:            "cloud",
			DownloadAttachments: true,
			MaxOpportunities:    10,
			PageSize:            25,
			Concurrency:         2,
		},
		Upstream: config.UpstreamConfig{
			SearchURL:          upstream + "/search/",
			DetailURL:          upstream + "/opps",
			ResourcesURL:       upstream + "/opps",
			DownloadURL:        upstream + "/files",
			OpportunityPageURL: upstream + "/opp",
		},
		HTTP: config.HTTPConfig{
			TimeoutSeconds:         5,
			DownloadTimeoutSeconds: 5,
			MaxDownloadBytes:       1 << 20,
		},
		Storage: config.StorageConfig{Backend: config.StorageMemory},
		Sink:    config.SinkConfig{Backends: []string{config.SinkMemory}},
	}
}

func TestAppRunsHarvestEndToEnd(t *testing.T) {
	t.Parallel()

	srv := fakeUpstream(t)
	cfg := testConfig(srv.URL)
	require.NoError(t, cfg.Validate())

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	stats, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.Emitted)
	require.Equal(t, 1, stats.Duplicates)
	require.Equal(t, 1, stats.Attachments[harvest.AttachmentDownloaded])
	require.Equal(t, 1, stats.Attachments[harvest.AttachmentFailed])
	require.Equal(t, 1, stats.Attachments[harvest.AttachmentSkipped])

	records := map[string]harvest.OpportunityRecord{}
	for _, rec := range a.MemorySink().Records() {
		records[rec.OpportunityID] = rec
	}
	require.Len(t, records, 2)

	abc := records["abc"]
	require.Equal(t, srv.URL+"/opp/abc/view", abc.Link)
	require.Equal(t, "541512", *abc.NAICSCode)
	require.Equal(t, "GSA", *abc.AgencyName)
	require.Equal(t, stats.RunID, abc.HarvestRunID)
	require.Len(t, abc.Attachments, 3)

	byResource := map[string]harvest.AttachmentDescriptor{}
	for _, d := range abc.Attachments {
		byResource[d.ResourceID] = d
	}
	require.Equal(t, harvest.AttachmentDownloaded, byResource["r1"].Status)
	require.Equal(t, "abc/SOW.pdf", byResource["r1"].StorageKey)
	require.EqualValues(t, len("statement of work"), byResource["r1"].DownloadedSize)

	blocked := byResource["r2"]
	require.Equal(t, harvest.AttachmentFailed, blocked.Status)
	require.Empty(t, blocked.StorageKey)
	require.Equal(t, srv.URL+"/files/r2/download", blocked.DownloadURL)
	require.Contains(t, blocked.DownloadError, harvest.ManualFallbackHint)

	require.Equal(t, harvest.AttachmentSkipped, byResource["r3"].Status)

	data, _, ok := a.MemoryBlobs().Get("abc/SOW.pdf")
	require.True(t, ok)
	require.Equal(t, "statement of work", string(data))

	def := records["def"]
	require.Nil(t, def.NAICSCode)
	require.NotNil(t, def.Attachments)
	require.Empty(t, def.Attachments)
}

func TestAppSkipsManifestWhenDownloadsDisabled(t *testing.T) {
	t.Parallel()

	srv := fakeUpstream(t)
	cfg := testConfig(srv.URL)
	cfg.Harvest.DownloadAttachments = false
	cfg.Sink = config.SinkConfig{
		Backends: []string{config.SinkMemory, config.SinkFile},
		FilePath: filepath.Join(t.TempDir(), "records.jsonl"),
	}

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	stats, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.Emitted)
	require.Nil(t, a.MemoryBlobs())
	for _, rec := range a.MemorySink().Records() {
		require.Empty(t, rec.Attachments)
	}
}

func TestNewFailsOnUnknownSink(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1:0")
	cfg.Sink.Backends = []string{"kafka"}

	_, err := app.New(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "kafka")
}
