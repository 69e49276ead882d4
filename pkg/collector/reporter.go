package collector

import "feedcrawler/pkg/models"

// Reporter observes a collection run. Calls for one target arrive from a
// single goroutine; a Reporter shared by parallel targets must synchronize.
type Reporter interface {
	RunStarted(target string, maxItems int)
	ItemDiscovered(target string, ref models.Reference)
	ItemDelivered(target string, ref models.Reference, collected int)
	ItemDropped(target string, ref models.Reference, err error)
	ScrollCompleted(target string, extent float64, stale int)
	Recovered(target string, recoveries int, cause error)
	RunFinished(result models.RunResult)
}

// NopReporter ignores every event
type NopReporter struct{}

func (NopReporter) RunStarted(string, int) {}
func (NopReporter) ItemDiscovered(string, models.Reference) {}
func (NopReporter) ItemDelivered(string, models.Reference, int) {}
func (NopReporter) ItemDropped(string, models.Reference, error) {}
func (NopReporter) ScrollCompleted(string, float64, int) {}
func (NopReporter) Recovered(string, int, error) {}
func (NopReporter) RunFinished(models.RunResult) {}

// MultiReporter fans events out to several reporters
type MultiReporter []Reporter

func (m MultiReporter) RunStarted(target string, maxItems int) {
	for _, r := range m {
		r.RunStarted(target, maxItems)
	}
}

func (m MultiReporter) ItemDiscovered(target string, ref models.Reference) {
	for _, r := range m {
		r.ItemDiscovered(target, ref)
	}
}

func (m MultiReporter) ItemDelivered(target string, ref models.Reference, collected int) {
	for _, r := range m {
		r.ItemDelivered(target, ref, collected)
	}
}

func (m MultiReporter) ItemDropped(target string, ref models.Reference, err error) {
	for _, r := range m {
		r.ItemDropped(target, ref, err)
	}
}

func (m MultiReporter) ScrollCompleted(target string, extent float64, stale int) {
	for _, r := range m {
		r.ScrollCompleted(target, extent, stale)
	}
}

func (m MultiReporter) Recovered(target string, recoveries int, cause error) {
	for _, r := range m {
		r.Recovered(target, recoveries, cause)
	}
}

func (m MultiReporter) RunFinished(result models.RunResult) {
	for _, r := range m {
		r.RunFinished(result)
	}
}
