// Package principal implements the Principal role: the orchestration side of
// the coordination layer. It decomposes incoming requests into tasks,
// discovers capable resources through one or more gateways, delegates each
// task to the best-ranked candidate, retries down the ranking on failure,
// and aggregates per-task outcomes into a single response.
package principal
