package metrics

import "sync/atomic"

var callsRecorded int64
var callLogFailures int64
var locationCacheHits int64
var locationsResolved int64
var locationsDegraded int64
var locationsOffline int64
var recordingsStarted int64
var recordingsStopped int64
var archiveFailures int64
var notifyFailures int64

func IncCallsRecorded()     { atomic.AddInt64(&callsRecorded, 1) }
func IncCallLogFailures()   { atomic.AddInt64(&callLogFailures, 1) }
func IncLocationCacheHits() { atomic.AddInt64(&locationCacheHits, 1) }
func IncLocationsResolved() { atomic.AddInt64(&locationsResolved, 1) }
func IncLocationsDegraded() { atomic.AddInt64(&locationsDegraded, 1) }
func IncLocationsOffline()  { atomic.AddInt64(&locationsOffline, 1) }
func IncRecordingsStarted() { atomic.AddInt64(&recordingsStarted, 1) }
func IncRecordingsStopped() { atomic.AddInt64(&recordingsStopped, 1) }
func IncArchiveFailures()   { atomic.AddInt64(&archiveFailures, 1) }
func IncNotifyFailures()    { atomic.AddInt64(&notifyFailures, 1) }

func Snapshot() map[string]int64 {
	return map[string]int64{
		"calls_recorded":      atomic.LoadInt64(&callsRecorded),
		"call_log_failures":   atomic.LoadInt64(&callLogFailures),
		"location_cache_hits": atomic.LoadInt64(&locationCacheHits),
		"locations_resolved":  atomic.LoadInt64(&locationsResolved),
		"locations_degraded":  atomic.LoadInt64(&locationsDegraded),
		"locations_offline":   atomic.LoadInt64(&locationsOffline),
		"recordings_started":  atomic.LoadInt64(&recordingsStarted),
		"recordings_stopped":  atomic.LoadInt64(&recordingsStopped),
		"archive_failures":    atomic.LoadInt64(&archiveFailures),
		"notify_failures":     atomic.LoadInt64(&notifyFailures),
	}
}
