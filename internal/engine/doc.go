// Package engine tracks monitored executions. It submits executions to the
// DSS backend, runs one poll session per execution, renders every observed
// status and fans it out to live subscribers through a StatusBroker.
package engine
