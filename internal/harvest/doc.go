// Package harvest implements the opportunity harvesting pipeline: the data
// model shared across subsystems, the paginated orchestrator with per-run
// deduplication and record budget, and record assembly from search summaries
// and best-effort detail documents.
package harvest
