// Package gateway assembles the registry, QoS tracking, and discovery into
// the Gateway role: the directory side of the coordination layer that admits
// resources, answers capability queries, and folds delegation outcomes back
// into the rankings.
package gateway
