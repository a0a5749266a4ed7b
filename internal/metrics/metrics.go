// Package metrics 进程内计数器（expvar）与调试服务。
package metrics

import "expvar"

var (
	ProbeRuns     = expvar.NewInt("popswap_probe_runs")
	ProbeNotFound = expvar.NewInt("popswap_probe_not_found")

	PreviewResolved  = expvar.NewInt("popswap_preview_resolved")
	PreviewMissing   = expvar.NewInt("popswap_preview_missing")
	PreviewCacheHits = expvar.NewInt("popswap_preview_cache_hits")

	TxSubmitted = expvar.NewInt("popswap_tx_submitted")
	TxConfirmed = expvar.NewInt("popswap_tx_confirmed")
	TxFailed    = expvar.NewInt("popswap_tx_failed")

	SessionsActive = expvar.NewInt("popswap_sessions_active")
)
