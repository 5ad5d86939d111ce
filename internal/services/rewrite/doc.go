// Package rewrite turns raw source stories into narration-ready scripts via
// OpenAI-compatible chat completion providers. Multiple providers form a
// fallback chain so a single outage does not stall the pipeline.
package rewrite
