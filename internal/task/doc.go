// Package task defines the schedulable unit of work and its supporting
// types: schedule kinds, the status transition graph, retry policy, owner
// identity, structural filters, and the coded error taxonomy shared by the
// registry, scheduler, and executor packages.
package task
