// Package main hosts the SAM.gov opportunity harvester entrypoint.
//
// Architecture overview:
//   - Search: internal/samgov pages through the public search API with a fixed
//     query shape. The posted-from window is anchored once at run start.
//   - Orchestration: internal/harvest deduplicates identifiers before any work is
//     scheduled, enriches records of one page in parallel, and holds a reservation
//     based budget so no more than harvest.max_opportunities records are pushed.
//   - Attachments: internal/acquire walks an ordered list of download strategies
//     (direct colly fetch, then a chromedp browser session). Non-public entries are
//     skipped by policy. Failures keep the download URL for manual retrieval.
//   - Persistence: attachment bytes go to the configured BlobStore
//     (memory/local/GCS); records fan out to file, Postgres, Pub/Sub or memory sinks.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides
//     structured logging; Prometheus metrics and run stats are served by the optional
//     ops server.
//
// Quick checklist:
//   - Configure env vars: HARVESTER_HARVEST_KEYWORDS, HARVESTER_HARVEST_NAICS_CODES,
//     HARVESTER_HARVEST_MAX_OPPORTUNITIES, HARVESTER_STORAGE_BACKEND,
//     HARVESTER_SINK_BACKENDS, HARVESTER_DB_DSN and HARVESTER_SERVER_PORT as needed.
//   - Run locally: go run ./cmd/harvester -config config.yaml
//   - The process exits non-zero when the run aborts (unreachable sink, canceled).
package main
